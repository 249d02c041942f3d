package protocol

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// Socket carries protocol envelopes over a dedicated websocket to the
// backend. A receive loop decodes inbound envelopes and hands them to the
// engine; outbound envelopes are written as text frames.
//
// Socket is safe for concurrent use. It reports the first fatal receive
// error via Err and closes exactly once.
type Socket struct {
	conn   *websocket.Conn
	engine *Engine

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// DialSocket connects the control-plane websocket at url and starts the
// receive loop feeding engine.
func DialSocket(ctx context.Context, url string, engine *Engine) (*Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("protocol: dial %q: %w", url, err)
	}

	sockCtx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		conn:   conn,
		engine: engine,
		ctx:    sockCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.receiveLoop()
	return s, nil
}

// Send writes one envelope to the backend.
func (s *Socket) Send(env *Envelope) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("protocol: socket closed")
	}
	s.mu.Unlock()

	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("protocol: marshal %s: %w", env.Name(), err)
	}
	if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("protocol: write %s: %w", env.Name(), err)
	}
	return nil
}

// receiveLoop reads inbound envelopes until the socket closes or a read
// fails. Malformed payloads are handled (and dropped) by the engine.
func (s *Socket) receiveLoop() {
	defer close(s.done)

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}
		s.engine.HandleInbound(data)
	}
}

func (s *Socket) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

// Err returns the first fatal receive error, or nil.
func (s *Socket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Done is closed when the receive loop has exited.
func (s *Socket) Done() <-chan struct{} { return s.done }

// Close terminates the socket. Idempotent.
func (s *Socket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "session ended")
	})
	return nil
}
