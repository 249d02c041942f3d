package protocol

import (
	"encoding/base64"
	"log/slog"

	"github.com/bytedance/sonic"

	"github.com/voxwire/voxwire/pkg/audio"
)

// interruptionFlag is the JSON shape an ASSISTANT textOutput takes when the
// backend reports that the user barged in over its speech.
type interruptionFlag struct {
	Interrupted bool `json:"interrupted"`
}

// HandleInbound decodes one inbound envelope and routes it. Malformed
// envelopes (unparseable JSON, a missing event key, or an unknown event
// name) are dropped with a logged warning; they never reach the renderer
// and never propagate an error into the control loop.
func (e *Engine) HandleInbound(raw []byte) {
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		e.drop("unparseable envelope", err)
		return
	}

	switch {
	case env.Event.TextOutput != nil:
		e.handleTextOutput(env.Event.TextOutput)
	case env.Event.AudioOutput != nil:
		e.handleAudioOutput(env.Event.AudioOutput)
	case env.Event.ContentStart != nil:
		e.handleContentStart(env.Event.ContentStart)
	default:
		e.drop("missing event key or unknown event name", nil)
	}
}

func (e *Engine) drop(reason string, err error) {
	e.dropped.Add(1)
	slog.Warn("dropping malformed inbound envelope", "reason", reason, "err", err)
}

// handleTextOutput accumulates transcript text. An ASSISTANT fragment whose
// content parses as JSON with interrupted:true is a barge-in notification:
// the renderer is flushed and the fragment is not treated as transcript.
func (e *Engine) handleTextOutput(ev *TextOutputEvent) {
	if ev.Role == RoleAssistant {
		var flag interruptionFlag
		if sonic.Unmarshal([]byte(ev.Content), &flag) == nil && flag.Interrupted {
			if e.renderer != nil {
				e.renderer.Clear()
			}
			if e.onBargeIn != nil {
				e.onBargeIn()
			}
			return
		}
	}

	e.mu.Lock()
	tr, ok := e.transcripts[ev.ContentID]
	if !ok {
		tr = &transcript{role: ev.Role}
		e.transcripts[ev.ContentID] = tr
	}
	tr.text += ev.Content
	cb := e.onTranscript
	e.mu.Unlock()

	if cb != nil {
		cb(TranscriptEntry{ContentID: ev.ContentID, Role: ev.Role, Text: ev.Content})
	}
}

// handleAudioOutput decodes base64 PCM16 (little-endian, mono) to
// normalized float32 samples and pushes them to the renderer.
func (e *Engine) handleAudioOutput(ev *AudioOutputEvent) {
	pcm, err := base64.StdEncoding.DecodeString(ev.Content)
	if err != nil {
		e.drop("audioOutput content is not valid base64", err)
		return
	}
	if e.renderer == nil || len(pcm) == 0 {
		return
	}
	e.renderer.Push(audio.DecodePCM16(pcm))
}

// handleContentStart opens a transcript entry for inbound TEXT content.
// AUDIO contentStart needs no local state; audioOutput chunks carry no
// content association.
func (e *Engine) handleContentStart(ev *ContentStartEvent) {
	if ev.Type != ContentTypeText || ev.ContentID == "" {
		return
	}
	e.mu.Lock()
	if _, ok := e.transcripts[ev.ContentID]; !ok {
		e.transcripts[ev.ContentID] = &transcript{role: ev.Role}
	}
	e.mu.Unlock()
}

// Transcript returns the accumulated text for a contentId, with false when
// no entry exists.
func (e *Engine) Transcript(contentID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tr, ok := e.transcripts[contentID]
	if !ok {
		return "", false
	}
	return tr.text, true
}
