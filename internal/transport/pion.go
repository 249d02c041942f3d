package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// dataChannelLabel names the single bidirectional channel carrying frames.
const dataChannelLabel = "voxwire"

// pionLink is the production [PeerLink] built on pion/webrtc. The data
// channel uses pion's defaults: ordered, reliable delivery, which the
// chunked transfer protocol relies on.
type pionLink struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	mu        sync.Mutex
	onMessage func([]byte)
	onState   func(ConnState)
}

// newPionLink creates a peer connection configured with the given ICE
// servers. The returned link is ready for Offer.
func newPionLink(servers []ICEServer) (PeerLink, error) {
	cfg := webrtc.Configuration{}
	for _, s := range servers {
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		cfg.ICEServers = append(cfg.ICEServers, ice)
	}

	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: new peer connection: %w", err)
	}

	l := &pionLink{pc: pc}
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		l.mu.Lock()
		fn := l.onState
		l.mu.Unlock()
		if fn != nil {
			fn(mapICEState(s))
		}
	})
	return l, nil
}

// mapICEState derives the transport connection state from pion's ICE
// connection state.
func mapICEState(s webrtc.ICEConnectionState) ConnState {
	switch s {
	case webrtc.ICEConnectionStateNew:
		return StateNew
	case webrtc.ICEConnectionStateChecking:
		return StateConnecting
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return StateConnected
	case webrtc.ICEConnectionStateFailed:
		return StateFailed
	case webrtc.ICEConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.ICEConnectionStateClosed:
		return StateClosed
	}
	return StateNew
}

func (l *pionLink) OnMessage(fn func([]byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onMessage = fn
}

func (l *pionLink) OnStateChange(fn func(ConnState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

func (l *pionLink) Offer(ctx context.Context) (string, error) {
	dc, err := l.pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		return "", fmt.Errorf("transport: create data channel: %w", err)
	}
	l.mu.Lock()
	l.dc = dc
	l.mu.Unlock()

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		l.mu.Lock()
		fn := l.onMessage
		l.mu.Unlock()
		if fn != nil {
			fn(msg.Data)
		}
	})

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("transport: create offer: %w", err)
	}

	// GatheringCompletePromise must be created before SetLocalDescription
	// starts the gathering.
	gathered := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("transport: set local description: %w", err)
	}

	// Proceed with whatever candidates were gathered when the bound expires.
	select {
	case <-gathered:
	case <-ctx.Done():
	}

	local := l.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("transport: no local description after gathering")
	}
	return local.SDP, nil
}

func (l *pionLink) Accept(answerSDP string) error {
	err := l.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	})
	if err != nil {
		return fmt.Errorf("transport: set remote description: %w", err)
	}
	return nil
}

func (l *pionLink) Send(data []byte) error {
	l.mu.Lock()
	dc := l.dc
	l.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("transport: data channel not open")
	}
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("transport: data channel send: %w", err)
	}
	return nil
}

func (l *pionLink) Close() error {
	l.mu.Lock()
	dc := l.dc
	l.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	if err := l.pc.Close(); err != nil {
		return fmt.Errorf("transport: close peer connection: %w", err)
	}
	return nil
}
