package protocol

import (
	"encoding/base64"
	"testing"
)

// fakeRenderer records pushes and clears for dispatch assertions.
type fakeRenderer struct {
	pushed  [][]float32
	cleared int
}

func (f *fakeRenderer) Push(samples []float32) { f.pushed = append(f.pushed, samples) }
func (f *fakeRenderer) Clear()                 { f.cleared++ }

func TestHandleInbound_AudioOutputReachesRenderer(t *testing.T) {
	t.Parallel()

	fr := &fakeRenderer{}
	e := NewEngine(EngineConfig{Renderer: fr})

	// Two PCM16 LE samples: 16384 (0.5) and -16384 (-0.5).
	pcm := []byte{0x00, 0x40, 0x00, 0xC0}
	raw := []byte(`{"event":{"audioOutput":{"content":"` + base64.StdEncoding.EncodeToString(pcm) + `"}}}`)

	e.HandleInbound(raw)

	if len(fr.pushed) != 1 {
		t.Fatalf("renderer received %d pushes, want 1", len(fr.pushed))
	}
	got := fr.pushed[0]
	if len(got) != 2 {
		t.Fatalf("decoded %d samples, want 2", len(got))
	}
	if got[0] != 0.5 || got[1] != -0.5 {
		t.Errorf("samples = %v, want [0.5 -0.5]", got)
	}
}

func TestHandleInbound_TextOutputAccumulatesTranscript(t *testing.T) {
	t.Parallel()

	var entries []TranscriptEntry
	e := NewEngine(EngineConfig{
		OnTranscript: func(te TranscriptEntry) { entries = append(entries, te) },
	})

	e.HandleInbound([]byte(`{"event":{"contentStart":{"type":"TEXT","role":"ASSISTANT","contentId":"c1"}}}`))
	e.HandleInbound([]byte(`{"event":{"textOutput":{"role":"ASSISTANT","content":"Hello, ","contentId":"c1"}}}`))
	e.HandleInbound([]byte(`{"event":{"textOutput":{"role":"ASSISTANT","content":"world.","contentId":"c1"}}}`))

	text, ok := e.Transcript("c1")
	if !ok {
		t.Fatal("no transcript accumulated for c1")
	}
	if text != "Hello, world." {
		t.Errorf("transcript = %q, want %q", text, "Hello, world.")
	}
	if len(entries) != 2 {
		t.Errorf("OnTranscript fired %d times, want 2", len(entries))
	}
}

func TestHandleInbound_InterruptionTriggersBargeIn(t *testing.T) {
	t.Parallel()

	fr := &fakeRenderer{}
	bargeIns := 0
	e := NewEngine(EngineConfig{
		Renderer:  fr,
		OnBargeIn: func() { bargeIns++ },
	})

	raw := []byte(`{"event":{"textOutput":{"role":"ASSISTANT","content":"{\"interrupted\":true}","contentId":"c1"}}}`)
	e.HandleInbound(raw)

	if fr.cleared != 1 {
		t.Errorf("renderer cleared %d times, want 1", fr.cleared)
	}
	if bargeIns != 1 {
		t.Errorf("OnBargeIn fired %d times, want 1", bargeIns)
	}
	// The interruption marker is a control signal, not transcript text.
	if _, ok := e.Transcript("c1"); ok {
		t.Error("interruption marker was accumulated as transcript")
	}
}

func TestHandleInbound_UserInterruptedFlagIgnored(t *testing.T) {
	t.Parallel()

	fr := &fakeRenderer{}
	e := NewEngine(EngineConfig{Renderer: fr})

	// Only ASSISTANT-role text carries the barge-in marker.
	raw := []byte(`{"event":{"textOutput":{"role":"USER","content":"{\"interrupted\":true}","contentId":"c1"}}}`)
	e.HandleInbound(raw)

	if fr.cleared != 0 {
		t.Errorf("renderer cleared %d times, want 0", fr.cleared)
	}
	if text, _ := e.Transcript("c1"); text != `{"interrupted":true}` {
		t.Errorf("USER text not accumulated verbatim, got %q", text)
	}
}

func TestHandleInbound_MalformedEnvelopesDropped(t *testing.T) {
	t.Parallel()

	fr := &fakeRenderer{}
	e := NewEngine(EngineConfig{Renderer: fr})

	cases := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"noEventKey":{}}`),
		[]byte(`{"event":{"unknownName":{"x":1}}}`),
		[]byte(`{"event":{}}`),
		[]byte(`{"event":{"audioOutput":{"content":"%%%not-base64%%%"}}}`),
	}
	for _, raw := range cases {
		e.HandleInbound(raw)
	}

	if len(fr.pushed) != 0 {
		t.Errorf("malformed envelopes reached the renderer: %d pushes", len(fr.pushed))
	}
	if got := e.DroppedEnvelopes(); got != int64(len(cases)) {
		t.Errorf("DroppedEnvelopes = %d, want %d", got, len(cases))
	}
}
