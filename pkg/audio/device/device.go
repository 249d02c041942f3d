// Package device binds the conversation client to the host's audio hardware
// through miniaudio: a capture device feeding 16-bit mono PCM to a callback,
// and a playback device pulling rendered samples from a RenderSource.
package device

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// Default device rates matching the protocol's audio configuration.
const (
	DefaultCaptureRate  = 16000
	DefaultPlaybackRate = 24000
)

// RenderSource produces playback samples on demand. Process fills dst
// completely, with silence when nothing is buffered. It is called from the
// audio thread and must not block.
type RenderSource interface {
	Process(dst []float32)
}

// Config selects device sample rates. Zero values use the defaults.
type Config struct {
	CaptureRate  int
	PlaybackRate int
}

func (c Config) withDefaults() Config {
	if c.CaptureRate <= 0 {
		c.CaptureRate = DefaultCaptureRate
	}
	if c.PlaybackRate <= 0 {
		c.PlaybackRate = DefaultPlaybackRate
	}
	return c
}

// Client owns the miniaudio context and both devices. Create with
// [NewClient], release with Close.
type Client struct {
	audioContext *malgo.AllocatedContext
	capture      captureDevice
	playback     playbackDevice
}

// NewClient initialises the audio context and both devices. The playback
// device is created but not started; call StartPlayback once the session is
// ready to render.
func NewClient(cfg Config, source RenderSource) (*Client, error) {
	cfg = cfg.withDefaults()

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("device: init context: %w", err)
	}

	c := &Client{audioContext: audioCtx}
	if err := c.capture.init(audioCtx, cfg.CaptureRate); err != nil {
		c.Close()
		return nil, fmt.Errorf("device: init capture: %w", err)
	}
	if err := c.playback.init(audioCtx, cfg.PlaybackRate, source); err != nil {
		c.Close()
		return nil, fmt.Errorf("device: init playback: %w", err)
	}
	return c, nil
}

// StartCapture begins delivering raw 16-bit mono PCM to onAudio from the
// audio thread. The slice passed to onAudio is only valid for the duration
// of the call.
func (c *Client) StartCapture(onAudio func(pcm []byte)) error {
	return c.capture.start(onAudio)
}

// StopCapture halts capture. Idempotent.
func (c *Client) StopCapture() error {
	return c.capture.stop()
}

// StartPlayback begins pulling samples from the render source.
func (c *Client) StartPlayback() error {
	return c.playback.start()
}

// StopPlayback halts playback. Idempotent.
func (c *Client) StopPlayback() error {
	return c.playback.stop()
}

// Close releases both devices and the audio context.
func (c *Client) Close() {
	_ = c.capture.uninit()
	_ = c.playback.uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}
