// Package playback implements the jitter-absorbing playback engine: a
// growable sample buffer plus a renderer that fills fixed-size audio
// quanta from it. The buffer smooths out variance in chunk arrival timing
// so the output device always has contiguous samples to play, and supports
// instant flushing when the user barges in over assistant speech.
package playback

import (
	"fmt"
)

// DefaultInitialBufferLength is the jitter cushion in samples that must
// accumulate before playback starts: 200 ms at 24 kHz.
const DefaultInitialBufferLength = 4800

// DefaultCapacity is the starting size of the sample buffer: 500 ms at
// 24 kHz. The buffer grows on demand and never shrinks.
const DefaultCapacity = 12000

// Buffer is a single growable float32 sample array with a read cursor and
// a write cursor (readIndex <= writeIndex <= len(data)). It is owned
// exclusively by the [Renderer]; methods are not safe for concurrent use.
//
// While the buffer is in "initial buffering" mode, reads produce silence
// even when samples are queued. The mode clears once the unread span
// reaches the configured initial buffer length, and re-engages whenever
// the buffer drains completely, so a fresh cushion accumulates before
// playback resumes.
type Buffer struct {
	data       []float32
	readIndex  int
	writeIndex int

	initialLength int
	buffering     bool

	maxCapacity int
	underflow   int64
}

// BufferConfig configures a [Buffer]. Zero values select the defaults.
type BufferConfig struct {
	// Capacity is the initial sample capacity. Default [DefaultCapacity].
	Capacity int

	// InitialBufferLength is the unread-sample threshold that ends initial
	// buffering. Default [DefaultInitialBufferLength].
	InitialBufferLength int

	// MaxCapacity bounds buffer growth. A write that would require growing
	// past this limit fails instead of truncating audio. Zero means no bound.
	MaxCapacity int
}

// NewBuffer creates a buffer in initial-buffering mode.
func NewBuffer(cfg BufferConfig) *Buffer {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	initial := cfg.InitialBufferLength
	if initial <= 0 {
		initial = DefaultInitialBufferLength
	}
	return &Buffer{
		data:          make([]float32, capacity),
		initialLength: initial,
		buffering:     true,
		maxCapacity:   cfg.MaxCapacity,
	}
}

// Unread returns the number of queued samples not yet read.
func (b *Buffer) Unread() int {
	return b.writeIndex - b.readIndex
}

// Buffering reports whether the buffer is accumulating its startup cushion.
func (b *Buffer) Buffering() bool {
	return b.buffering
}

// Underflow returns the cumulative number of zero-filled samples emitted
// outside initial buffering.
func (b *Buffer) Underflow() int64 {
	return b.underflow
}

// SetInitialLength overrides the jitter-cushion threshold. Values <= 0 are
// ignored. Takes effect on the next write.
func (b *Buffer) SetInitialLength(n int) {
	if n > 0 {
		b.initialLength = n
	}
}

// Write enqueues samples. If the trailing capacity is insufficient it first
// compacts unread samples to offset zero and retries; if still insufficient
// it reallocates at twice the needed plus unread length. Returns an error
// only when growth would exceed the configured maximum capacity.
func (b *Buffer) Write(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	if b.writeIndex+len(samples) > len(b.data) {
		b.compact()
	}
	if b.writeIndex+len(samples) > len(b.data) {
		if err := b.ensureCapacity(len(samples)); err != nil {
			return err
		}
	}

	copy(b.data[b.writeIndex:], samples)
	b.writeIndex += len(samples)

	if b.buffering && b.Unread() >= b.initialLength {
		b.buffering = false
	}
	return nil
}

// Read fills dst from the buffer. During initial buffering dst is zeroed
// and zero real samples are copied. Otherwise min(len(dst), unread) real
// samples are copied, the remainder is zero-filled and counted as
// underflow, and a fully drained buffer re-enters initial buffering.
// Returns the number of real samples copied. Read never blocks.
func (b *Buffer) Read(dst []float32) int {
	if b.buffering {
		zeroFill(dst)
		return 0
	}

	n := min(len(dst), b.Unread())
	copy(dst[:n], b.data[b.readIndex:b.readIndex+n])
	b.readIndex += n

	zeroFill(dst[n:])
	b.underflow += int64(len(dst) - n)

	if n == 0 {
		// Drained dry: rebuild the cushion before resuming playback.
		b.buffering = true
	}
	return n
}

// Clear discards all queued samples and re-enters initial buffering.
// Used for barge-in: queued assistant speech is cancelled instantly.
// Safe to call on an already-empty buffer.
func (b *Buffer) Clear() {
	b.readIndex = 0
	b.writeIndex = 0
	b.buffering = true
}

// compact shifts the unread span [readIndex, writeIndex) to offset zero,
// reclaiming the consumed prefix without reallocating.
func (b *Buffer) compact() {
	if b.readIndex == 0 {
		return
	}
	unread := b.Unread()
	copy(b.data, b.data[b.readIndex:b.writeIndex])
	b.readIndex = 0
	b.writeIndex = unread
}

// ensureCapacity grows the backing array so that n more samples fit after
// writeIndex, allocating 2*(n+unread) and copying unread samples forward.
// Must be called after compact (readIndex == 0).
func (b *Buffer) ensureCapacity(n int) error {
	newCap := 2 * (n + b.Unread())
	if newCap <= len(b.data) {
		return nil
	}
	if b.maxCapacity > 0 && newCap > b.maxCapacity {
		return fmt.Errorf("playback: buffer growth to %d samples exceeds limit %d", newCap, b.maxCapacity)
	}
	grown := make([]float32, newCap)
	copy(grown, b.data[b.readIndex:b.writeIndex])
	b.writeIndex = b.Unread()
	b.readIndex = 0
	b.data = grown
	return nil
}

func zeroFill(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
}
