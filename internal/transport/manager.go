package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for transport spans.
const tracerName = "github.com/voxwire/voxwire/internal/transport"

// DefaultGatherTimeout bounds the wait for ICE gathering to complete before
// the offer is sent with whatever candidates were collected.
const DefaultGatherTimeout = 5 * time.Second

// ManagerConfig configures a [Manager].
type ManagerConfig struct {
	// SignalingEndpoint is the HTTP URL receiving {sdp, type, peerId}.
	SignalingEndpoint string

	// ICEServers lists STUN/TURN servers for the peer connection.
	ICEServers []ICEServer

	// GatherTimeout bounds ICE gathering. Default [DefaultGatherTimeout].
	GatherTimeout time.Duration

	// ChunkSize is the payload bytes per audio-chunk frame.
	// Default [DefaultChunkSize].
	ChunkSize int

	// Reconnect controls backoff between automatic reconnection attempts.
	Reconnect ReconnectPolicy

	// OnConnected fires each time the link reaches CONNECTED, including
	// after a reconnection.
	OnConnected func()

	// OnTerminalDisconnect fires exactly once when the reconnection budget
	// is exhausted. No further attempts are scheduled afterwards.
	OnTerminalDisconnect func()

	// OnTransfer receives each fully reassembled chunked audio payload.
	OnTransfer func(Transfer)

	// OnFrame receives frames whose type is not part of the chunked
	// transfer protocol (the generic message handler).
	OnFrame func(Frame)

	// NewLink overrides peer link construction; tests inject fakes here.
	// Defaults to the pion implementation.
	NewLink func([]ICEServer) (PeerLink, error)

	// HTTPClient overrides the signaling HTTP client.
	HTTPClient *http.Client
}

// Manager owns the peer connection and data channel for one session. It
// performs signaling, carries frames in both directions, reassembles
// chunked transfers, and reconnects with exponential backoff when the link
// drops. All methods are safe for concurrent use.
type Manager struct {
	cfg       ManagerConfig
	signaling *SignalingClient
	tracer    trace.Tracer

	mu             sync.Mutex
	state          ConnState
	link           PeerLink
	peerID         string
	attempts       int
	connecting     bool
	closed         bool
	terminalFired  bool
	reconnectTimer *time.Timer
	cancelConnect  context.CancelFunc
	assembler      Assembler

	chunksSent     atomic.Int64
	chunksReceived atomic.Int64
	reconnects     atomic.Int64
}

// NewManager creates a manager in the NEW state. Connect must be called to
// establish the link.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = DefaultGatherTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	cfg.Reconnect = cfg.Reconnect.withDefaults()
	if cfg.NewLink == nil {
		cfg.NewLink = newPionLink
	}
	return &Manager{
		cfg:       cfg,
		signaling: NewSignalingClient(cfg.SignalingEndpoint, cfg.HTTPClient),
		tracer:    otel.Tracer(tracerName),
		state:     StateNew,
	}
}

// State returns the current connection state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PeerID returns the server-assigned peer identifier, if one has been
// received. It is sent on subsequent signaling exchanges so the server can
// associate reconnections with the same session.
func (m *Manager) PeerID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peerID
}

// ChunksSent returns the count of audio-chunk frames sent.
func (m *Manager) ChunksSent() int64 { return m.chunksSent.Load() }

// ChunksReceived returns the count of audio-chunk frames received.
func (m *Manager) ChunksReceived() int64 { return m.chunksReceived.Load() }

// Reconnects returns the count of reconnection attempts scheduled.
func (m *Manager) Reconnects() int64 { return m.reconnects.Load() }

// Connect establishes the peer connection: create link, gather ICE
// candidates (bounded), exchange SDP with the signaling endpoint, apply the
// answer. A failure below the reconnection budget schedules a retry with
// exponential backoff and is also returned to the caller.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("transport: manager is closed")
	}
	if m.connecting {
		m.mu.Unlock()
		return nil
	}
	m.connecting = true
	m.state = StateConnecting
	connectCtx, cancel := context.WithCancel(ctx)
	m.cancelConnect = cancel
	m.mu.Unlock()

	err := m.connect(connectCtx)

	m.mu.Lock()
	m.connecting = false
	m.cancelConnect = nil
	closed := m.closed
	m.mu.Unlock()
	cancel()

	if err != nil && !closed {
		slog.Warn("connect failed", "err", err)
		m.scheduleReconnect()
	}
	return err
}

func (m *Manager) connect(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "transport.connect",
		trace.WithAttributes(attribute.String("signaling.endpoint", m.cfg.SignalingEndpoint)),
	)
	defer span.End()

	link, err := m.cfg.NewLink(m.cfg.ICEServers)
	if err != nil {
		span.SetStatus(codes.Error, "link setup")
		return err
	}
	link.OnMessage(m.handleMessage)
	// Bind the callback to this link so state events from a replaced link
	// cannot be mistaken for events on the current one.
	link.OnStateChange(func(s ConnState) { m.handleStateChange(link, s) })

	gatherCtx, gatherCancel := context.WithTimeout(ctx, m.cfg.GatherTimeout)
	offerSDP, err := link.Offer(gatherCtx)
	gatherCancel()
	if err != nil {
		_ = link.Close()
		span.SetStatus(codes.Error, "offer")
		return err
	}

	m.mu.Lock()
	peerID := m.peerID
	m.mu.Unlock()

	resp, err := m.signaling.Exchange(ctx, SignalRequest{
		SDP:    offerSDP,
		Type:   "offer",
		PeerID: peerID,
	})
	if err != nil {
		_ = link.Close()
		span.SetStatus(codes.Error, "signaling")
		return err
	}

	if err := link.Accept(resp.SDP); err != nil {
		_ = link.Close()
		span.SetStatus(codes.Error, "accept answer")
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = link.Close()
		span.SetStatus(codes.Error, "manager closed")
		return fmt.Errorf("transport: manager closed during connect")
	}
	old := m.link
	m.link = link
	if resp.PeerID != "" {
		m.peerID = resp.PeerID
	}
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// handleStateChange derives manager state from one link's ICE-derived
// state. CONNECTED resets the reconnection budget; a drop schedules a
// reconnection unless a connect attempt is already in flight or the event
// came from a link the manager has already replaced.
func (m *Manager) handleStateChange(link PeerLink, s ConnState) {
	switch s {
	case StateConnected:
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.state = StateConnected
		m.attempts = 0
		cb := m.cfg.OnConnected
		m.mu.Unlock()

		if ready, err := NewFrame(FrameClientReady, "", nil); err == nil {
			if err := m.SendMessage(ready); err != nil {
				slog.Debug("client-ready not sent", "err", err)
			}
		}
		if cb != nil {
			cb()
		}

	case StateFailed, StateDisconnected, StateClosed:
		m.mu.Lock()
		if m.closed || m.connecting || link != m.link {
			m.mu.Unlock()
			return
		}
		m.state = s
		m.mu.Unlock()

		slog.Warn("peer link dropped", "state", s.String())
		m.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer for the next attempt, or fires
// the terminal-disconnect callback once the budget is exhausted.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closed || m.connecting || m.reconnectTimer != nil {
		m.mu.Unlock()
		return
	}

	m.attempts++
	attempt := m.attempts
	if attempt > m.cfg.Reconnect.MaxAttempts {
		fire := !m.terminalFired
		m.terminalFired = true
		m.state = StateDisconnected
		cb := m.cfg.OnTerminalDisconnect
		m.mu.Unlock()

		if fire {
			slog.Error("reconnection budget exhausted",
				"max_attempts", m.cfg.Reconnect.MaxAttempts,
			)
			if cb != nil {
				cb()
			}
		}
		return
	}

	delay := m.cfg.Reconnect.Delay(attempt)
	m.reconnects.Add(1)
	slog.Info("scheduling reconnection",
		"attempt", attempt,
		"max_attempts", m.cfg.Reconnect.MaxAttempts,
		"delay", delay,
	)

	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		closed := m.closed
		link := m.link
		m.link = nil
		m.mu.Unlock()

		if closed {
			return
		}
		if link != nil {
			_ = link.Close()
		}
		// Connect schedules the next attempt itself on failure.
		_ = m.Connect(context.Background())
	})
	m.mu.Unlock()
}

// SendMessage writes one frame on the data channel. It fails when the
// channel is not open; nothing is queued and nothing is dropped silently.
func (m *Manager) SendMessage(f Frame) error {
	m.mu.Lock()
	link := m.link
	m.mu.Unlock()

	if link == nil {
		return fmt.Errorf("transport: no open data channel")
	}
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	return link.Send(data)
}

// SendAudio transmits an audio payload as a chunked transfer.
func (m *Manager) SendAudio(filename, mimeType string, data []byte) error {
	return SendChunked(func(f Frame) error {
		if err := m.SendMessage(f); err != nil {
			return err
		}
		if f.Type == FrameAudioChunk {
			m.chunksSent.Add(1)
		}
		return nil
	}, filename, mimeType, data, m.cfg.ChunkSize)
}

// handleMessage decodes inbound data-channel messages and routes them:
// chunked-transfer frames feed the assembler, everything else goes to the
// generic frame handler. Malformed frames are dropped with a warning.
func (m *Manager) handleMessage(raw []byte) {
	f, err := DecodeFrame(raw)
	if err != nil {
		slog.Warn("dropping malformed data-channel frame", "err", err)
		return
	}

	switch f.Type {
	case FrameAudioStart, FrameAudioChunk, FrameAudioEnd:
		if f.Type == FrameAudioChunk {
			m.chunksReceived.Add(1)
		}
		m.mu.Lock()
		tr, err := m.assembler.HandleFrame(f)
		m.mu.Unlock()
		if err != nil {
			slog.Warn("chunked transfer aborted", "err", err)
			return
		}
		if tr != nil && m.cfg.OnTransfer != nil {
			m.cfg.OnTransfer(*tr)
		}

	case FrameClientReady:
		slog.Debug("peer signalled ready")

	default:
		if m.cfg.OnFrame != nil {
			m.cfg.OnFrame(f)
		}
	}
}

// Disconnect tears down the link and cancels any pending reconnection
// timer or in-flight signaling exchange, guaranteeing no reconnection
// attempt fires after an intentional disconnect. Idempotent.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.state = StateClosed
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.cancelConnect != nil {
		m.cancelConnect()
	}
	link := m.link
	m.link = nil
	m.mu.Unlock()

	if link != nil {
		return link.Close()
	}
	return nil
}
