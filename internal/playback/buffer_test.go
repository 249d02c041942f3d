package playback

import (
	"testing"
)

func newTestBuffer(t *testing.T, initialLength int) *Buffer {
	t.Helper()
	return NewBuffer(BufferConfig{InitialBufferLength: initialLength})
}

// ramp returns n samples with values 0, 1, 2, ... so ordering is checkable.
func ramp(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func checkInvariants(t *testing.T, b *Buffer) {
	t.Helper()
	if b.readIndex > b.writeIndex {
		t.Fatalf("readIndex %d > writeIndex %d", b.readIndex, b.writeIndex)
	}
	if b.writeIndex > len(b.data) {
		t.Fatalf("writeIndex %d > len(data) %d", b.writeIndex, len(b.data))
	}
	if b.readIndex < 0 {
		t.Fatalf("readIndex %d < 0", b.readIndex)
	}
}

func TestBuffer_InitialBufferingEmitsSilence(t *testing.T) {
	t.Parallel()

	b := newTestBuffer(t, 4800)
	if err := b.Write(ramp(0, 2000)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !b.Buffering() {
		t.Fatal("2000 of 4800 cushion samples written, want still buffering")
	}

	dst := make([]float32, 128)
	dst[0] = 99 // must be overwritten with silence
	if n := b.Read(dst); n != 0 {
		t.Errorf("Read during initial buffering copied %d samples, want 0", n)
	}
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("dst[%d] = %v, want silence", i, v)
		}
	}
	if b.Underflow() != 0 {
		t.Errorf("underflow = %d during initial buffering, want 0", b.Underflow())
	}
}

func TestBuffer_CushionExample(t *testing.T) {
	t.Parallel()

	// Initial buffer length 4800 samples (200 ms @ 24 kHz). 2000 then 3000
	// more samples cross the threshold; a 5000-sample read then returns all
	// real samples with zero underflow.
	b := newTestBuffer(t, 4800)

	if err := b.Write(ramp(0, 2000)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !b.Buffering() {
		t.Fatal("buffering cleared at 2000 samples, want it held until 4800")
	}
	if err := b.Write(ramp(2000, 3000)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if b.Buffering() {
		t.Fatal("buffering still set at 5000 unread samples, want cleared")
	}

	dst := make([]float32, 5000)
	if n := b.Read(dst); n != 5000 {
		t.Fatalf("Read copied %d, want 5000", n)
	}
	for i, v := range dst {
		if v != float32(i) {
			t.Fatalf("dst[%d] = %v, want %d (out of order)", i, v, i)
		}
	}
	if b.Underflow() != 0 {
		t.Errorf("underflow = %d, want 0", b.Underflow())
	}
}

func TestBuffer_ReadConservation(t *testing.T) {
	t.Parallel()

	// Every sample of every destination is produced: the first n are real
	// (non-zero ramp values here), the rest are zero-filled. No read blocks
	// and no destination is left partially written.
	b := newTestBuffer(t, 100)

	var written, copied int
	sizes := []int{64, 10, 300, 1, 128, 4096, 7}
	for i, sz := range sizes {
		if i%2 == 0 {
			if err := b.Write(ramp(1+written, sz)); err != nil {
				t.Fatalf("Write: %v", err)
			}
			written += sz
			checkInvariants(t, b)
			continue
		}
		dst := make([]float32, sz)
		for j := range dst {
			dst[j] = -1 // sentinel: must be overwritten
		}
		n := b.Read(dst)
		copied += n
		for j := range dst {
			if j < n && dst[j] <= 0 {
				t.Fatalf("dst[%d] = %v, want real (positive) sample", j, dst[j])
			}
			if j >= n && dst[j] != 0 {
				t.Fatalf("dst[%d] = %v, want zero fill", j, dst[j])
			}
		}
		checkInvariants(t, b)
	}
	if copied > written {
		t.Errorf("copied %d real samples but only %d were written", copied, written)
	}
}

func TestBuffer_UnderflowCountedAndBufferingReengages(t *testing.T) {
	t.Parallel()

	b := newTestBuffer(t, 10)
	if err := b.Write(ramp(0, 10)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// First read drains all 10 real samples and zero-fills 6.
	dst := make([]float32, 16)
	if n := b.Read(dst); n != 10 {
		t.Fatalf("Read copied %d, want 10", n)
	}
	if b.Underflow() != 6 {
		t.Errorf("underflow = %d, want 6", b.Underflow())
	}
	if b.Buffering() {
		t.Fatal("buffering re-engaged while samples were still copied")
	}

	// Second read finds the buffer fully drained: copyLength == 0, so the
	// buffer re-enters initial buffering to rebuild its cushion.
	if n := b.Read(dst); n != 0 {
		t.Fatalf("Read on drained buffer copied %d, want 0", n)
	}
	if !b.Buffering() {
		t.Error("fully drained buffer did not re-enter initial buffering")
	}
}

func TestBuffer_CompactionPreservesOrder(t *testing.T) {
	t.Parallel()

	b := NewBuffer(BufferConfig{Capacity: 100, InitialBufferLength: 1})

	if err := b.Write(ramp(0, 80)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	dst := make([]float32, 60)
	if n := b.Read(dst); n != 60 {
		t.Fatalf("Read copied %d, want 60", n)
	}

	// 20 unread remain at offset 60; writing 50 forces compaction but not
	// reallocation (20 + 50 <= 100).
	if err := b.Write(ramp(80, 50)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(b.data) != 100 {
		t.Errorf("capacity grew to %d, want compaction to avoid reallocating", len(b.data))
	}
	checkInvariants(t, b)

	out := make([]float32, 70)
	if n := b.Read(out); n != 70 {
		t.Fatalf("Read copied %d, want 70", n)
	}
	for i, v := range out {
		if v != float32(60+i) {
			t.Fatalf("out[%d] = %v, want %d", i, v, 60+i)
		}
	}
}

func TestBuffer_GrowthPolicy(t *testing.T) {
	t.Parallel()

	b := NewBuffer(BufferConfig{Capacity: 10, InitialBufferLength: 1})

	if err := b.Write(ramp(0, 8)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// 8 unread + 32 needed: compaction is not enough, reallocate at
	// 2 * (32 + 8) = 80.
	if err := b.Write(ramp(8, 32)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(b.data) != 80 {
		t.Errorf("capacity = %d after growth, want 80", len(b.data))
	}
	checkInvariants(t, b)

	out := make([]float32, 40)
	if n := b.Read(out); n != 40 {
		t.Fatalf("Read copied %d, want 40", n)
	}
	for i, v := range out {
		if v != float32(i) {
			t.Fatalf("out[%d] = %v, want %d", i, v, i)
		}
	}
}

func TestBuffer_GrowthLimitSurfacesError(t *testing.T) {
	t.Parallel()

	b := NewBuffer(BufferConfig{Capacity: 10, InitialBufferLength: 1, MaxCapacity: 64})

	if err := b.Write(ramp(0, 10)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := b.Write(ramp(10, 100)); err == nil {
		t.Fatal("Write past MaxCapacity succeeded, want explicit error instead of truncation")
	}
	// The failed write must not have corrupted the cursors.
	checkInvariants(t, b)
	if b.Unread() != 10 {
		t.Errorf("unread = %d after failed write, want 10", b.Unread())
	}
}

func TestBuffer_ClearIsIdempotent(t *testing.T) {
	t.Parallel()

	b := newTestBuffer(t, 10)

	// Clear on a fresh, empty buffer and again after use.
	b.Clear()
	b.Clear()
	checkInvariants(t, b)
	if !b.Buffering() {
		t.Error("cleared buffer not in initial buffering")
	}

	if err := b.Write(ramp(0, 20)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b.Clear()
	checkInvariants(t, b)
	if b.Unread() != 0 {
		t.Errorf("unread = %d after Clear, want 0", b.Unread())
	}
	if !b.Buffering() {
		t.Error("Clear did not re-enter initial buffering")
	}

	dst := make([]float32, 8)
	if n := b.Read(dst); n != 0 {
		t.Errorf("Read after Clear copied %d, want 0", n)
	}
}

func TestBuffer_SetInitialLength(t *testing.T) {
	t.Parallel()

	b := newTestBuffer(t, 4800)
	b.SetInitialLength(100)
	if err := b.Write(ramp(0, 100)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if b.Buffering() {
		t.Error("override to 100 samples ignored, still buffering")
	}

	// Non-positive overrides are ignored.
	b.SetInitialLength(0)
	b.SetInitialLength(-5)
	if b.initialLength != 100 {
		t.Errorf("initialLength = %d, want 100", b.initialLength)
	}
}
