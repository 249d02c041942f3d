// Package protocol implements the turn-based session protocol spoken with
// the remote speech backend: envelope construction with local ordering
// validation, default configuration handling, and dispatch of inbound
// transcript/audio events.
//
// The wire shape is {"event":{"<name>":{...}}} with exactly one event per
// envelope. Outbound envelopes are built through the [Engine], which
// enforces the session → prompt → content lifecycle before anything is
// serialized; inbound envelopes are decoded by [Engine.HandleInbound].
package protocol

import "github.com/bytedance/sonic"

// Role identifies the speaker a content unit belongs to.
type Role string

const (
	RoleSystem    Role = "SYSTEM"
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// ContentType distinguishes text from audio content units.
type ContentType string

const (
	ContentTypeText  ContentType = "TEXT"
	ContentTypeAudio ContentType = "AUDIO"
)

// Envelope is the top-level protocol frame. Envelopes are immutable once
// built; builders return fresh values.
type Envelope struct {
	Event Event `json:"event"`
}

// Event is a tagged union: exactly one field is non-nil per envelope.
// The populated field determines the event name on the wire.
type Event struct {
	SessionStart *SessionStartEvent `json:"sessionStart,omitempty"`
	PromptStart  *PromptStartEvent  `json:"promptStart,omitempty"`
	ContentStart *ContentStartEvent `json:"contentStart,omitempty"`
	TextInput    *TextInputEvent    `json:"textInput,omitempty"`
	AudioInput   *AudioInputEvent   `json:"audioInput,omitempty"`
	ContentEnd   *ContentEndEvent   `json:"contentEnd,omitempty"`
	PromptEnd    *PromptEndEvent    `json:"promptEnd,omitempty"`
	SessionEnd   *SessionEndEvent   `json:"sessionEnd,omitempty"`

	// Inbound-only events.
	TextOutput  *TextOutputEvent  `json:"textOutput,omitempty"`
	AudioOutput *AudioOutputEvent `json:"audioOutput,omitempty"`
}

// SessionStartEvent opens a session with the backend.
type SessionStartEvent struct {
	InferenceConfig InferenceConfig `json:"inferenceConfiguration"`
}

// PromptStartEvent opens one conversational turn-scope.
type PromptStartEvent struct {
	PromptName        string            `json:"promptName"`
	AudioOutputConfig AudioOutputConfig `json:"audioOutputConfiguration"`
	ToolConfig        *ToolConfig       `json:"toolConfiguration,omitempty"`
}

// ContentStartEvent opens a typed content unit within a prompt. Exactly one
// of TextInputConfig/AudioInputConfig is set, matching Type.
type ContentStartEvent struct {
	PromptName       string            `json:"promptName,omitempty"`
	ContentName      string            `json:"contentName,omitempty"`
	Type             ContentType       `json:"type"`
	Role             Role              `json:"role"`
	TextInputConfig  *TextInputConfig  `json:"textInputConfiguration,omitempty"`
	AudioInputConfig *AudioInputConfig `json:"audioInputConfiguration,omitempty"`

	// ContentID is set on inbound contentStart events from the backend.
	ContentID string `json:"contentId,omitempty"`
}

// TextInputEvent carries one text payload for an open TEXT content.
type TextInputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// AudioInputEvent carries one base64 PCM16 chunk for an open AUDIO content.
type AudioInputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// ContentEndEvent closes a content unit.
type ContentEndEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
}

// PromptEndEvent closes a turn-scope.
type PromptEndEvent struct {
	PromptName string `json:"promptName"`
}

// SessionEndEvent terminates the session. It has no fields.
type SessionEndEvent struct{}

// TextOutputEvent is an inbound transcript fragment from the backend.
type TextOutputEvent struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	ContentID string `json:"contentId"`
}

// AudioOutputEvent is an inbound base64 PCM16 audio chunk (little-endian,
// mono) from the backend.
type AudioOutputEvent struct {
	Content string `json:"content"`
}

// Marshal serializes the envelope to its wire form.
func (e *Envelope) Marshal() ([]byte, error) {
	return sonic.Marshal(e)
}

// Name returns the wire name of the single populated event, or "" when the
// envelope is empty or ambiguous. Used for logging and dispatch.
func (e *Envelope) Name() string {
	switch {
	case e.Event.SessionStart != nil:
		return "sessionStart"
	case e.Event.PromptStart != nil:
		return "promptStart"
	case e.Event.ContentStart != nil:
		return "contentStart"
	case e.Event.TextInput != nil:
		return "textInput"
	case e.Event.AudioInput != nil:
		return "audioInput"
	case e.Event.ContentEnd != nil:
		return "contentEnd"
	case e.Event.PromptEnd != nil:
		return "promptEnd"
	case e.Event.SessionEnd != nil:
		return "sessionEnd"
	case e.Event.TextOutput != nil:
		return "textOutput"
	case e.Event.AudioOutput != nil:
		return "audioOutput"
	}
	return ""
}
