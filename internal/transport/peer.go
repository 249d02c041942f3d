package transport

import "context"

// ConnState is the connection lifecycle state derived from the underlying
// ICE connection state.
type ConnState uint8

const (
	StateNew ConnState = iota
	StateConnecting
	StateConnected
	StateFailed
	StateDisconnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateFailed:
		return "FAILED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// ICEServer is one STUN/TURN entry in the peer connection configuration.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// PeerLink abstracts a single peer connection with one data channel,
// decoupling the manager from the pion types so tests can substitute a
// fake. The production implementation is built on pion/webrtc.
type PeerLink interface {
	// Offer opens the data channel, creates an SDP offer, sets it as the
	// local description, and waits for ICE gathering to complete or ctx to
	// expire, whichever comes first, before returning the offer SDP with
	// whatever candidates were gathered.
	Offer(ctx context.Context) (sdp string, err error)

	// Accept applies the remote SDP answer.
	Accept(answerSDP string) error

	// Send writes one message on the data channel. It fails when the
	// channel is not open; nothing is queued.
	Send(data []byte) error

	// OnMessage registers the inbound data-channel message handler.
	// Must be called before Offer.
	OnMessage(fn func(data []byte))

	// OnStateChange registers the derived connection state handler.
	// Must be called before Offer.
	OnStateChange(fn func(ConnState))

	// Close tears down the data channel and peer connection.
	Close() error
}
