package playback

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// commandBuffer is the depth of the renderer's command port. Sized so a
// control-side burst of audio pushes never blocks under normal chunk rates.
const commandBuffer = 256

// durationBuffer holds render quantum timings until the control side drains
// them. At 10 ms quanta it covers several seconds of samples; when full, new
// timings are dropped rather than blocking the callback.
const durationBuffer = 512

// commandKind tags the messages accepted on the renderer's command port.
type commandKind uint8

const (
	cmdPush commandKind = iota
	cmdSetInitialLength
	cmdClear
)

// command is the single message type crossing from the control context into
// the rendering context. Exactly one payload field is meaningful per kind.
type command struct {
	kind    commandKind
	samples []float32
	length  int
}

// Renderer owns a [Buffer] and fills fixed-size output quanta from it. The
// output device invokes [Renderer.Process] from its real-time callback; the
// control side talks to the renderer exclusively through the asynchronous
// command port ([Renderer.Push], [Renderer.SetInitialBufferLength],
// [Renderer.Clear]). No state is mutated from both contexts: commands are
// drained and applied inside Process, which never blocks and never calls
// back into control-side code.
type Renderer struct {
	buf       *Buffer
	cmds      chan command
	durations chan time.Duration
	closed    atomic.Bool

	// Mirrors of buffer counters, readable from the control context.
	underflow atomic.Int64
	rendered  atomic.Int64

	onError func(error)
}

// RendererConfig configures a [Renderer].
type RendererConfig struct {
	// Buffer configures the owned sample buffer.
	Buffer BufferConfig

	// OnError receives buffer growth failures. Such a failure is fatal for
	// the session: queued audio could otherwise be silently truncated.
	// Invoked from the rendering context; the callback must not block.
	OnError func(error)
}

// NewRenderer creates a renderer with its owned buffer in initial-buffering
// mode.
func NewRenderer(cfg RendererConfig) *Renderer {
	return &Renderer{
		buf:       NewBuffer(cfg.Buffer),
		cmds:      make(chan command, commandBuffer),
		durations: make(chan time.Duration, durationBuffer),
		onError:   cfg.OnError,
	}
}

// Push queues decoded samples for playback. Called from the control context.
// Blocks only if the command port is full, which indicates the output device
// has stalled. Samples pushed after Close are dropped.
func (r *Renderer) Push(samples []float32) {
	if r.closed.Load() || len(samples) == 0 {
		return
	}
	r.cmds <- command{kind: cmdPush, samples: samples}
}

// SetInitialBufferLength overrides the jitter-cushion threshold in samples.
func (r *Renderer) SetInitialBufferLength(n int) {
	if r.closed.Load() {
		return
	}
	r.cmds <- command{kind: cmdSetInitialLength, length: n}
}

// Clear flushes all queued audio (barge-in). The next Process call applies
// the flush before rendering, so at most one quantum of stale audio plays.
func (r *Renderer) Clear() {
	if r.closed.Load() {
		return
	}
	r.cmds <- command{kind: cmdClear}
}

// Process fills dst with the next output quantum. It drains pending commands
// without blocking, applies them in arrival order, then reads from the
// buffer (silence while the cushion accumulates, zero-fill on underflow).
// Invoked from the real-time audio callback; it never blocks.
func (r *Renderer) Process(dst []float32) {
	start := time.Now()
drain:
	for {
		select {
		case c := <-r.cmds:
			r.apply(c)
		default:
			break drain
		}
	}

	r.buf.Read(dst)
	r.underflow.Store(r.buf.Underflow())
	r.rendered.Add(int64(len(dst)))

	select {
	case r.durations <- time.Since(start):
	default:
	}
}

func (r *Renderer) apply(c command) {
	switch c.kind {
	case cmdPush:
		if err := r.buf.Write(c.samples); err != nil {
			if r.onError != nil {
				r.onError(err)
			} else {
				slog.Error("playback buffer write failed", "err", err)
			}
		}
	case cmdSetInitialLength:
		r.buf.SetInitialLength(c.length)
	case cmdClear:
		r.buf.Clear()
	}
}

// Underflow returns the cumulative zero-filled sample count. Safe to call
// from the control context; used as an observable metric source.
func (r *Renderer) Underflow() int64 {
	return r.underflow.Load()
}

// Rendered returns the total number of samples produced by Process
// (real plus zero-filled).
func (r *Renderer) Rendered() int64 {
	return r.rendered.Load()
}

// DrainDurations returns the render quantum timings recorded since the last
// call. Called from the control context; the rendering side drops timings
// instead of blocking when they accumulate faster than they are drained.
func (r *Renderer) DrainDurations() []time.Duration {
	var out []time.Duration
	for {
		select {
		case d := <-r.durations:
			out = append(out, d)
		default:
			return out
		}
	}
}

// Close stops accepting commands. Process remains callable (it keeps
// emitting silence once drained) so the device callback needs no teardown
// ordering with respect to the control side.
func (r *Renderer) Close() {
	r.closed.Store(true)
}
