package playback

import (
	"testing"
)

func TestRenderer_CommandsApplyInOrder(t *testing.T) {
	t.Parallel()

	r := NewRenderer(RendererConfig{Buffer: BufferConfig{InitialBufferLength: 4}})

	r.Push(ramp(1, 4))
	dst := make([]float32, 4)
	r.Process(dst)
	for i, v := range dst {
		if v != float32(1+i) {
			t.Fatalf("dst[%d] = %v, want %d", i, v, 1+i)
		}
	}
}

func TestRenderer_ClearFlushesQueuedAudio(t *testing.T) {
	t.Parallel()

	r := NewRenderer(RendererConfig{Buffer: BufferConfig{InitialBufferLength: 4}})

	// Barge-in: audio pushed before Clear must never reach the output.
	r.Push(ramp(1, 64))
	r.Clear()

	dst := make([]float32, 16)
	r.Process(dst)
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("dst[%d] = %v after barge-in clear, want silence", i, v)
		}
	}
}

func TestRenderer_SetInitialBufferLengthOverride(t *testing.T) {
	t.Parallel()

	r := NewRenderer(RendererConfig{Buffer: BufferConfig{InitialBufferLength: 4800}})

	r.SetInitialBufferLength(8)
	r.Push(ramp(1, 8))

	dst := make([]float32, 8)
	r.Process(dst)
	if dst[0] != 1 {
		t.Errorf("dst[0] = %v, want 1 (override should have ended initial buffering)", dst[0])
	}
}

func TestRenderer_UnderflowExposedToControlSide(t *testing.T) {
	t.Parallel()

	r := NewRenderer(RendererConfig{Buffer: BufferConfig{InitialBufferLength: 4}})

	r.Push(ramp(1, 4))
	dst := make([]float32, 10)
	r.Process(dst)

	if got := r.Underflow(); got != 6 {
		t.Errorf("Underflow = %d, want 6", got)
	}
	if got := r.Rendered(); got != 10 {
		t.Errorf("Rendered = %d, want 10", got)
	}
}

func TestRenderer_GrowthFailureHitsErrorCallback(t *testing.T) {
	t.Parallel()

	var gotErr error
	r := NewRenderer(RendererConfig{
		Buffer:  BufferConfig{Capacity: 8, InitialBufferLength: 1, MaxCapacity: 16},
		OnError: func(err error) { gotErr = err },
	})

	r.Push(ramp(1, 8))
	r.Push(ramp(9, 100))
	r.Process(make([]float32, 1))

	if gotErr == nil {
		t.Fatal("buffer growth failure did not reach the error callback")
	}
}

func TestRenderer_DrainDurationsReportsQuantumTimings(t *testing.T) {
	t.Parallel()

	r := NewRenderer(RendererConfig{Buffer: BufferConfig{InitialBufferLength: 4}})

	r.Push(ramp(1, 4))
	dst := make([]float32, 4)
	r.Process(dst)
	r.Process(dst)

	got := r.DrainDurations()
	if len(got) != 2 {
		t.Fatalf("drained %d timings, want 2", len(got))
	}
	for i, d := range got {
		if d < 0 {
			t.Errorf("timing[%d] = %v, want non-negative", i, d)
		}
	}
	if rest := r.DrainDurations(); len(rest) != 0 {
		t.Errorf("second drain returned %d timings, want 0", len(rest))
	}
}

func TestRenderer_CloseDropsLateCommands(t *testing.T) {
	t.Parallel()

	r := NewRenderer(RendererConfig{Buffer: BufferConfig{InitialBufferLength: 1}})
	r.Close()

	// Must not block or panic.
	r.Push(ramp(1, 4))
	r.Clear()
	r.SetInitialBufferLength(2)

	dst := make([]float32, 4)
	r.Process(dst)
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("dst[%d] = %v after Close, want silence", i, v)
		}
	}
}
