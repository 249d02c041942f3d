// Package config provides the configuration schema and loader for the
// Voxwire conversation client.
package config

// LogLevel controls log verbosity for the client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Voxwire.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Signaling SignalingConfig `yaml:"signaling"`
	Control   ControlConfig   `yaml:"control"`
	Audio     AudioConfig     `yaml:"audio"`
	Inference InferenceConfig `yaml:"inference"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ClientConfig holds logging and telemetry settings.
type ClientConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving Prometheus /metrics
	// (e.g., ":9090"). Empty disables the metrics endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// SignalingConfig describes the HTTP endpoint used to exchange SDP offers
// and answers, plus the ICE servers for the peer connection.
type SignalingConfig struct {
	// Endpoint is the signaling URL receiving {sdp, type, peerId} offers.
	Endpoint string `yaml:"endpoint"`

	// ICEServers lists STUN/TURN servers. When empty, the peer connection
	// is attempted with host candidates only.
	ICEServers []ICEServerConfig `yaml:"ice_servers"`

	// GatherTimeoutSeconds bounds ICE candidate gathering before the offer
	// is sent with whatever candidates were collected. Zero uses the
	// built-in default.
	GatherTimeoutSeconds int `yaml:"gather_timeout_seconds"`
}

// ICEServerConfig describes one STUN or TURN server.
type ICEServerConfig struct {
	// URLs lists the server addresses (e.g., "stun:stun.l.google.com:19302").
	URLs []string `yaml:"urls"`

	// Username authenticates against TURN servers. Optional.
	Username string `yaml:"username"`

	// Credential authenticates against TURN servers. Optional.
	Credential string `yaml:"credential"`
}

// ControlConfig describes the websocket carrying session protocol envelopes.
type ControlConfig struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string `yaml:"url"`
}

// AudioConfig holds capture and playback settings. Zero values select the
// protocol defaults (16 kHz capture, 24 kHz playback, mono 16-bit).
type AudioConfig struct {
	// InputSampleRate is the capture rate in hertz.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the playback rate in hertz.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// VoiceID selects the synthesised voice.
	VoiceID string `yaml:"voice_id"`

	// InitialBufferSamples is the playback cushion accumulated before the
	// first audible sample. Zero uses the built-in default.
	InitialBufferSamples int `yaml:"initial_buffer_samples"`

	// MaxBufferSamples caps playback buffer growth. Zero means unbounded.
	MaxBufferSamples int `yaml:"max_buffer_samples"`

	// ChunkSizeBytes is the payload size per data-channel audio chunk.
	// Zero uses the built-in default.
	ChunkSizeBytes int `yaml:"chunk_size_bytes"`
}

// InferenceConfig overrides model sampling parameters. Zero values keep the
// protocol defaults.
type InferenceConfig struct {
	// MaxTokens caps the response length.
	MaxTokens int `yaml:"max_tokens"`

	// TopP is the nucleus sampling parameter in (0, 1].
	TopP float64 `yaml:"top_p"`

	// Temperature is the sampling temperature in [0, 2].
	Temperature float64 `yaml:"temperature"`
}

// ReconnectConfig controls transport reconnection backoff.
type ReconnectConfig struct {
	// BaseDelayMS is the delay before the first reconnection attempt in
	// milliseconds; each further attempt doubles it. Zero uses the
	// built-in default.
	BaseDelayMS int `yaml:"base_delay_ms"`

	// MaxAttempts is the number of consecutive failures tolerated before
	// the session is abandoned. Zero uses the built-in default.
	MaxAttempts int `yaml:"max_attempts"`
}
