package device

import (
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

type playbackDevice struct {
	mu      sync.Mutex
	device  *malgo.Device
	source  RenderSource
	scratch []float32
}

func (p *playbackDevice) init(audioContext *malgo.AllocatedContext, sampleRate int, source RenderSource) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	format := malgo.FormatS16
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels
	periodFrames := sampleRate / 100

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Playback.Format = format
	cfg.Playback.Channels = uint32(channels)
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency
	cfg.PeriodSizeInFrames = uint32(periodFrames)
	cfg.Periods = 3

	p.source = source
	// Preallocated so the data callback never allocates.
	p.scratch = make([]float32, 4*periodFrames)

	device, err := malgo.InitDevice(audioContext.Context, cfg, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			p.render(pOutput, int(frameCount), bytesPerFrame)
		},
	})
	if err != nil {
		return err
	}
	p.device = device
	return nil
}

// render fills the device's output buffer from the source, converting
// float32 samples to 16-bit little-endian PCM. Requests larger than the
// scratch buffer are served in scratch-sized passes so every frame the
// device asked for is written.
func (p *playbackDevice) render(out []byte, frames, bytesPerFrame int) {
	if p.source == nil || len(out) < frames*bytesPerFrame {
		return
	}
	for off := 0; off < frames; {
		n := frames - off
		if n > len(p.scratch) {
			n = len(p.scratch)
		}
		dst := p.scratch[:n]
		p.source.Process(dst)
		encodeInto(out[off*bytesPerFrame:(off+n)*bytesPerFrame], dst)
		off += n
	}
}

// encodeInto writes samples as clamped 16-bit little-endian PCM into out.
func encodeInto(out []byte, samples []float32) {
	for i, s := range samples {
		v := int32(math.Round(float64(s) * 32768))
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
}

func (p *playbackDevice) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return fmt.Errorf("device: playback not initialized")
	}
	if p.device.IsStarted() {
		return nil
	}
	if err := p.device.Start(); err != nil {
		return fmt.Errorf("device: start playback: %w", err)
	}
	return nil
}

func (p *playbackDevice) stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil || !p.device.IsStarted() {
		return nil
	}
	if err := p.device.Stop(); err != nil {
		return fmt.Errorf("device: stop playback: %w", err)
	}
	return nil
}

func (p *playbackDevice) uninit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	return nil
}
