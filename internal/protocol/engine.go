package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is the engine's position in the session lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateSessionOpen
	StatePromptOpen
	StateContentOpenText
	StateContentOpenAudio
	StateSessionClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSessionOpen:
		return "SESSION_OPEN"
	case StatePromptOpen:
		return "PROMPT_OPEN"
	case StateContentOpenText:
		return "CONTENT_OPEN(TEXT)"
	case StateContentOpenAudio:
		return "CONTENT_OPEN(AUDIO)"
	case StateSessionClosed:
		return "SESSION_CLOSED"
	}
	return "UNKNOWN"
}

// ErrOrdering is returned when an operation is attempted outside its place
// in the session → prompt → content lifecycle. The violating call produces
// no envelope; nothing reaches the wire.
var ErrOrdering = errors.New("protocol ordering violation")

// RendererControl is the engine's one-way handle onto the playback side:
// decoded audio goes in, and barge-in flushes whatever is queued.
type RendererControl interface {
	Push(samples []float32)
	Clear()
}

// TranscriptEntry is one accumulated transcript fragment surfaced to the
// embedding application.
type TranscriptEntry struct {
	ContentID string
	Role      Role
	Text      string
}

// Engine builds and validates outbound envelopes and dispatches inbound
// events. It owns the protocol state machine:
//
//	IDLE → SESSION_OPEN → PROMPT_OPEN → CONTENT_OPEN(TEXT|AUDIO) →
//	PROMPT_OPEN → … → SESSION_CLOSED (terminal)
//
// All methods are safe for concurrent use.
type Engine struct {
	mu          sync.Mutex
	state       State
	promptName  string
	contentName string
	contentType ContentType

	renderer     RendererControl
	onTranscript func(TranscriptEntry)
	onBargeIn    func()

	// transcripts accumulates inbound text keyed by the backend's contentId.
	transcripts map[string]*transcript

	rejections atomic.Int64
	dropped    atomic.Int64
}

type transcript struct {
	role Role
	text string
}

// EngineConfig wires the engine's collaborators. All fields are optional;
// nil callbacks are skipped and a nil renderer drops inbound audio.
type EngineConfig struct {
	// Renderer receives decoded assistant audio and barge-in flushes.
	Renderer RendererControl

	// OnTranscript is invoked for each accumulated transcript fragment.
	OnTranscript func(TranscriptEntry)

	// OnBargeIn is invoked once per detected interruption, after the
	// renderer has been cleared.
	OnBargeIn func()
}

// NewEngine creates an engine in the IDLE state.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		state:        StateIdle,
		renderer:     cfg.Renderer,
		onTranscript: cfg.OnTranscript,
		onBargeIn:    cfg.OnBargeIn,
		transcripts:  make(map[string]*transcript),
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// OrderingRejections returns the count of locally rejected operations.
func (e *Engine) OrderingRejections() int64 { return e.rejections.Load() }

// DroppedEnvelopes returns the count of malformed inbound envelopes dropped.
func (e *Engine) DroppedEnvelopes() int64 { return e.dropped.Load() }

// NewName returns a generated unique name for a prompt or content unit.
func NewName() string { return uuid.NewString() }

// reject logs and counts a protocol-ordering violation. Callers return the
// wrapped error without building an envelope.
func (e *Engine) reject(op string, detail string) error {
	e.rejections.Add(1)
	slog.Warn("protocol ordering violation, no envelope emitted",
		"op", op,
		"state", e.state.String(),
		"detail", detail,
	)
	return fmt.Errorf("%s: %s (state %s): %w", op, detail, e.state, ErrOrdering)
}

// SessionStart opens the session. Zero-valued config fields fall back to
// the frozen defaults.
func (e *Engine) SessionStart(cfg InferenceConfig) (*Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return nil, e.reject("sessionStart", "session already started")
	}
	e.state = StateSessionOpen
	return &Envelope{Event: Event{SessionStart: &SessionStartEvent{
		InferenceConfig: mergeInference(cfg),
	}}}, nil
}

// PromptStart opens a turn-scope named promptID. toolCfg may be nil.
func (e *Engine) PromptStart(promptID string, audioOut AudioOutputConfig, toolCfg *ToolConfig) (*Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateSessionOpen {
		return nil, e.reject("promptStart", "no open session or prompt already open")
	}
	e.state = StatePromptOpen
	e.promptName = promptID
	return &Envelope{Event: Event{PromptStart: &PromptStartEvent{
		PromptName:        promptID,
		AudioOutputConfig: mergeAudioOutput(audioOut),
		ToolConfig:        toolCfg,
	}}}, nil
}

// ContentStartText opens a TEXT content unit within the open prompt.
func (e *Engine) ContentStartText(promptID, contentID string, role Role) (*Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePromptOpen || promptID != e.promptName {
		return nil, e.reject("contentStart", "no matching open prompt")
	}
	e.state = StateContentOpenText
	e.contentName = contentID
	e.contentType = ContentTypeText
	cfg := defaultTextInput
	return &Envelope{Event: Event{ContentStart: &ContentStartEvent{
		PromptName:      promptID,
		ContentName:     contentID,
		Type:            ContentTypeText,
		Role:            role,
		TextInputConfig: &cfg,
	}}}, nil
}

// TextInput sends text into an open TEXT content unit.
func (e *Engine) TextInput(promptID, contentID, text string) (*Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateContentOpenText || promptID != e.promptName || contentID != e.contentName {
		return nil, e.reject("textInput", "no matching open TEXT content")
	}
	return &Envelope{Event: Event{TextInput: &TextInputEvent{
		PromptName:  promptID,
		ContentName: contentID,
		Content:     text,
	}}}, nil
}

// ContentStartAudio opens a USER AUDIO content unit within the open prompt.
// Zero-valued config fields fall back to the frozen defaults.
func (e *Engine) ContentStartAudio(promptID, contentID string, cfg AudioInputConfig) (*Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePromptOpen || promptID != e.promptName {
		return nil, e.reject("contentStart", "no matching open prompt")
	}
	e.state = StateContentOpenAudio
	e.contentName = contentID
	e.contentType = ContentTypeAudio
	merged := mergeAudioInput(cfg)
	return &Envelope{Event: Event{ContentStart: &ContentStartEvent{
		PromptName:       promptID,
		ContentName:      contentID,
		Type:             ContentTypeAudio,
		Role:             RoleUser,
		AudioInputConfig: &merged,
	}}}, nil
}

// AudioInput sends one base64 PCM16 chunk into an open AUDIO content unit.
func (e *Engine) AudioInput(promptID, contentID, base64Chunk string) (*Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateContentOpenAudio || promptID != e.promptName || contentID != e.contentName {
		return nil, e.reject("audioInput", "no matching open AUDIO content")
	}
	return &Envelope{Event: Event{AudioInput: &AudioInputEvent{
		PromptName:  promptID,
		ContentName: contentID,
		Content:     base64Chunk,
	}}}, nil
}

// ContentEnd closes the open content unit, returning to PROMPT_OPEN.
func (e *Engine) ContentEnd(promptID, contentID string) (*Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	open := e.state == StateContentOpenText || e.state == StateContentOpenAudio
	if !open || promptID != e.promptName || contentID != e.contentName {
		return nil, e.reject("contentEnd", "no matching open content")
	}
	e.state = StatePromptOpen
	e.contentName = ""
	return &Envelope{Event: Event{ContentEnd: &ContentEndEvent{
		PromptName:  promptID,
		ContentName: contentID,
	}}}, nil
}

// PromptEnd closes the open turn-scope, returning to SESSION_OPEN.
func (e *Engine) PromptEnd(promptID string) (*Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePromptOpen || promptID != e.promptName {
		return nil, e.reject("promptEnd", "no matching open prompt")
	}
	e.state = StateSessionOpen
	e.promptName = ""
	return &Envelope{Event: Event{PromptEnd: &PromptEndEvent{
		PromptName: promptID,
	}}}, nil
}

// SessionEnd closes the session. The engine state becomes terminal; every
// subsequent operation is rejected.
func (e *Engine) SessionEnd() (*Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateSessionOpen {
		return nil, e.reject("sessionEnd", "session not open or content/prompt still open")
	}
	e.state = StateSessionClosed
	return &Envelope{Event: Event{SessionEnd: &SessionEndEvent{}}}, nil
}
