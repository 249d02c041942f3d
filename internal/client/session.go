// Package client wires transport, protocol, playback, and capture into one
// speech conversation session.
package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/playback"
	"github.com/voxwire/voxwire/internal/protocol"
	"github.com/voxwire/voxwire/internal/transport"
	"github.com/voxwire/voxwire/pkg/audio"
)

// captureQueueSize bounds the mic frame queue between the audio thread and
// the control loop. Frames beyond it are dropped rather than blocking the
// device callback.
const captureQueueSize = 64

// metricsInterval is how often engine and transport counters are sampled
// into OTel instruments.
const metricsInterval = 5 * time.Second

// protocolInputRate is the sample rate the backend expects for audioInput.
const protocolInputRate = 16000

// Session owns exactly one conversation: a peer connection, a control
// socket, a protocol engine, and the playback renderer. Create with [New],
// drive with [Run], feed microphone audio through [CaptureFrame].
type Session struct {
	cfg     *config.Config
	metrics *observe.Metrics

	renderer *playback.Renderer
	engine   *protocol.Engine
	manager  *transport.Manager

	frames      chan []byte
	transcripts chan protocol.TranscriptEntry
	terminal    chan struct{}

	mu        sync.Mutex
	socket    *protocol.Socket
	promptID  string
	contentID string
	utterance []byte

	droppedFrames int64
}

// Option customises session construction.
type Option func(*options)

type options struct {
	linkFactory func([]transport.ICEServer) (transport.PeerLink, error)
}

// WithLinkFactory overrides peer link construction. Tests inject fakes here.
func WithLinkFactory(fn func([]transport.ICEServer) (transport.PeerLink, error)) Option {
	return func(o *options) { o.linkFactory = fn }
}

// New builds a session from configuration. Nothing is connected until Run.
func New(cfg *config.Config, metrics *observe.Metrics, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("client: nil config")
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		cfg:         cfg,
		metrics:     metrics,
		frames:      make(chan []byte, captureQueueSize),
		transcripts: make(chan protocol.TranscriptEntry, 16),
		terminal:    make(chan struct{}),
	}

	s.renderer = playback.NewRenderer(playback.RendererConfig{
		Buffer: playback.BufferConfig{
			InitialBufferLength: cfg.Audio.InitialBufferSamples,
			MaxCapacity:         cfg.Audio.MaxBufferSamples,
		},
		OnError: func(err error) {
			slog.Error("playback buffer rejected samples", "err", err)
		},
	})
	if err := metrics.RegisterUnderflowSource(s.renderer.Underflow); err != nil {
		return nil, fmt.Errorf("client: register underflow metric: %w", err)
	}

	s.engine = protocol.NewEngine(protocol.EngineConfig{
		Renderer: s.renderer,
		OnTranscript: func(entry protocol.TranscriptEntry) {
			select {
			case s.transcripts <- entry:
			default:
				slog.Debug("transcript consumer lagging, entry dropped",
					"content_id", entry.ContentID,
				)
			}
		},
		OnBargeIn: func() {
			s.metrics.BargeIns.Add(context.Background(), 1)
			slog.Info("barge-in: playback flushed")
		},
	})

	iceServers := make([]transport.ICEServer, 0, len(cfg.Signaling.ICEServers))
	for _, srv := range cfg.Signaling.ICEServers {
		iceServers = append(iceServers, transport.ICEServer{
			URLs:       srv.URLs,
			Username:   srv.Username,
			Credential: srv.Credential,
		})
	}
	s.manager = transport.NewManager(transport.ManagerConfig{
		SignalingEndpoint: cfg.Signaling.Endpoint,
		ICEServers:        iceServers,
		GatherTimeout:     time.Duration(cfg.Signaling.GatherTimeoutSeconds) * time.Second,
		ChunkSize:         cfg.Audio.ChunkSizeBytes,
		Reconnect: transport.ReconnectPolicy{
			BaseDelay:   time.Duration(cfg.Reconnect.BaseDelayMS) * time.Millisecond,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
		OnConnected: func() {
			slog.Info("peer connection established", "peer_id", s.manager.PeerID())
		},
		OnTerminalDisconnect: func() {
			s.metrics.TerminalDisconnects.Add(context.Background(), 1)
			close(s.terminal)
		},
		OnTransfer: s.handleTransfer,
		OnFrame: func(f transport.Frame) {
			slog.Debug("unhandled data-channel frame", "type", f.Type)
		},
		NewLink: o.linkFactory,
	})

	return s, nil
}

// Renderer exposes the playback renderer for the audio device callback.
func (s *Session) Renderer() *playback.Renderer { return s.renderer }

// TransportReady reports whether the peer connection is up. Used as a
// readiness probe.
func (s *Session) TransportReady(context.Context) error {
	if st := s.manager.State(); st != transport.StateConnected {
		return fmt.Errorf("peer connection %s", st)
	}
	return nil
}

// ControlReady reports whether the session protocol is usable: the control
// socket is open and the state machine has not closed.
func (s *Session) ControlReady(context.Context) error {
	s.mu.Lock()
	sock := s.socket
	s.mu.Unlock()

	if sock == nil {
		return errors.New("control socket not connected")
	}
	select {
	case <-sock.Done():
		return errors.New("control socket closed")
	default:
	}
	if st := s.engine.State(); st == protocol.StateSessionClosed {
		return fmt.Errorf("session %s", st)
	}
	return nil
}

// Transcripts streams accumulated transcript fragments to the application.
func (s *Session) Transcripts() <-chan protocol.TranscriptEntry { return s.transcripts }

// CaptureFrame enqueues one captured 16-bit mono PCM frame. Called from the
// audio thread; never blocks. Frames are dropped when the control loop
// cannot keep up.
func (s *Session) CaptureFrame(pcm []byte) {
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	select {
	case s.frames <- buf:
	default:
		s.droppedFrames++
	}
}

// handleTransfer plays back a fully reassembled data-channel audio payload.
func (s *Session) handleTransfer(tr transport.Transfer) {
	slog.Debug("received chunked audio payload",
		"filename", tr.Filename,
		"bytes", len(tr.Data),
	)
	s.renderer.Push(audio.DecodePCM16(tr.Data))
}

// Run connects everything and drives the conversation until ctx is
// cancelled, the control socket closes, or the transport gives up
// reconnecting. The session is closed gracefully on the way out.
func (s *Session) Run(ctx context.Context) error {
	ctx, span := observe.StartSpan(ctx, "session.run")
	defer span.End()
	log := observe.Logger(ctx)

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)
	defer s.renderer.Close()
	defer func() { _ = s.manager.Disconnect() }()

	if err := s.manager.Connect(ctx); err != nil {
		return fmt.Errorf("client: connect transport: %w", err)
	}

	sock, err := protocol.DialSocket(ctx, s.cfg.Control.URL, s.engine)
	if err != nil {
		return fmt.Errorf("client: dial control socket: %w", err)
	}
	s.mu.Lock()
	s.socket = sock
	s.mu.Unlock()
	defer func() { _ = sock.Close() }()

	if err := s.openConversation(); err != nil {
		return err
	}
	log.Info("conversation opened", "peer_id", s.manager.PeerID())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pumpCapture(ctx) })
	g.Go(func() error { return s.recordMetrics(ctx) })
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sock.Done():
			if err := sock.Err(); err != nil {
				return fmt.Errorf("client: control socket: %w", err)
			}
			return errors.New("client: control socket closed")
		case <-s.terminal:
			return errors.New("client: transport gave up reconnecting")
		}
	})

	runErr := g.Wait()
	if closeErr := s.closeConversation(); closeErr != nil {
		log.Warn("conversation not closed cleanly", "err", closeErr)
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// openConversation walks the protocol up to an open audio content unit:
// sessionStart, promptStart, contentStartAudio.
func (s *Session) openConversation() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := s.engine.SessionStart(protocol.InferenceConfig{
		MaxTokens:   s.cfg.Inference.MaxTokens,
		TopP:        s.cfg.Inference.TopP,
		Temperature: s.cfg.Inference.Temperature,
	})
	if err != nil {
		return err
	}
	if err := s.socket.Send(env); err != nil {
		return err
	}

	s.promptID = protocol.NewName()
	env, err = s.engine.PromptStart(s.promptID, protocol.AudioOutputConfig{
		SampleRateHertz: s.cfg.Audio.OutputSampleRate,
		VoiceID:         s.cfg.Audio.VoiceID,
	}, nil)
	if err != nil {
		return err
	}
	if err := s.socket.Send(env); err != nil {
		return err
	}

	return s.openAudioContentLocked()
}

func (s *Session) openAudioContentLocked() error {
	s.contentID = protocol.NewName()
	env, err := s.engine.ContentStartAudio(s.promptID, s.contentID, protocol.AudioInputConfig{
		SampleRateHertz: protocolInputRate,
	})
	if err != nil {
		return err
	}
	return s.socket.Send(env)
}

// closeConversation unwinds the protocol: contentEnd, promptEnd, sessionEnd,
// and flushes the accumulated utterance over the data channel. Errors are
// joined; an already-closed socket makes them expected.
func (s *Session) closeConversation() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.socket == nil || s.engine.State() == protocol.StateSessionClosed {
		return nil
	}

	var errs []error
	send := func(env *protocol.Envelope, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		if err := s.socket.Send(env); err != nil {
			errs = append(errs, err)
		}
	}

	state := s.engine.State()
	if state == protocol.StateContentOpenAudio || state == protocol.StateContentOpenText {
		send(s.engine.ContentEnd(s.promptID, s.contentID))
		s.flushUtteranceLocked()
	}
	if s.engine.State() == protocol.StatePromptOpen {
		send(s.engine.PromptEnd(s.promptID))
	}
	if s.engine.State() == protocol.StateSessionOpen {
		send(s.engine.SessionEnd())
	}
	return errors.Join(errs...)
}

// flushUtteranceLocked ships the accumulated microphone audio as one chunked
// data-channel transfer. Failures are logged, not fatal: the control-plane
// envelopes already carried the same audio.
func (s *Session) flushUtteranceLocked() {
	if len(s.utterance) == 0 {
		return
	}
	name := s.contentID + ".raw"
	if err := s.manager.SendAudio(name, "audio/lpcm", s.utterance); err != nil {
		slog.Warn("utterance transfer failed", "filename", name, "err", err)
	}
	s.utterance = nil
}

// pumpCapture drains microphone frames into audioInput envelopes.
func (s *Session) pumpCapture(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pcm := <-s.frames:
			s.sendAudioFrame(pcm)
		}
	}
}

// sendAudioFrame resamples one captured frame to the protocol rate and
// sends it as an audioInput envelope. Ordering rejections are expected
// while a turn is being switched and are not fatal.
func (s *Session) sendAudioFrame(pcm []byte) {
	if rate := s.cfg.Audio.InputSampleRate; rate > 0 && rate != protocolInputRate {
		samples := audio.ResampleMono(audio.DecodePCM16(pcm), rate, protocolInputRate)
		pcm = audio.EncodePCM16(samples)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := s.engine.AudioInput(s.promptID, s.contentID,
		base64.StdEncoding.EncodeToString(pcm))
	if err != nil {
		slog.Debug("captured frame skipped", "err", err)
		return
	}
	if err := s.socket.Send(env); err != nil {
		slog.Warn("audio input not sent", "err", err)
		return
	}
	s.utterance = append(s.utterance, pcm...)
}

// SendText interleaves a text turn: the open audio content is closed, a
// TEXT content unit carries the message, and a fresh audio content unit is
// opened afterwards so capture resumes seamlessly.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.socket == nil {
		return errors.New("client: session not running")
	}

	env, err := s.engine.ContentEnd(s.promptID, s.contentID)
	if err != nil {
		return err
	}
	if err := s.socket.Send(env); err != nil {
		return err
	}
	s.flushUtteranceLocked()

	textID := protocol.NewName()
	steps := []func() (*protocol.Envelope, error){
		func() (*protocol.Envelope, error) {
			return s.engine.ContentStartText(s.promptID, textID, protocol.RoleUser)
		},
		func() (*protocol.Envelope, error) {
			return s.engine.TextInput(s.promptID, textID, text)
		},
		func() (*protocol.Envelope, error) {
			return s.engine.ContentEnd(s.promptID, textID)
		},
	}
	for _, step := range steps {
		env, err := step()
		if err != nil {
			return err
		}
		if err := s.socket.Send(env); err != nil {
			return err
		}
	}

	return s.openAudioContentLocked()
}

// recordMetrics periodically samples cumulative engine and transport
// counters into OTel instruments, recording deltas.
func (s *Session) recordMetrics(ctx context.Context) error {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	var lastRejections, lastDropped, lastSent, lastReceived, lastReconnects int64
	record := func() {
		if d := s.engine.OrderingRejections() - lastRejections; d > 0 {
			s.metrics.OrderingRejections.Add(ctx, d)
			lastRejections += d
		}
		if d := s.engine.DroppedEnvelopes() - lastDropped; d > 0 {
			s.metrics.DroppedEnvelopes.Add(ctx, d)
			lastDropped += d
		}
		if d := s.manager.ChunksSent() - lastSent; d > 0 {
			s.metrics.RecordChunks(ctx, "sent", d)
			lastSent += d
		}
		if d := s.manager.ChunksReceived() - lastReceived; d > 0 {
			s.metrics.RecordChunks(ctx, "received", d)
			lastReceived += d
		}
		if d := s.manager.Reconnects() - lastReconnects; d > 0 {
			s.metrics.ReconnectAttempts.Add(ctx, d)
			lastReconnects += d
		}
		for _, d := range s.renderer.DrainDurations() {
			s.metrics.RenderDuration.Record(ctx, d.Seconds())
		}
	}

	for {
		select {
		case <-ctx.Done():
			record()
			return ctx.Err()
		case <-ticker.C:
			record()
		}
	}
}
