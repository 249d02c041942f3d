package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Client.LogLevel != "" && !cfg.Client.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("client.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Client.LogLevel))
	}

	if cfg.Signaling.Endpoint == "" {
		errs = append(errs, errors.New("signaling.endpoint is required"))
	} else if u, err := url.Parse(cfg.Signaling.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("signaling.endpoint %q must be an http or https URL", cfg.Signaling.Endpoint))
	}
	if cfg.Signaling.GatherTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("signaling.gather_timeout_seconds %d must not be negative", cfg.Signaling.GatherTimeoutSeconds))
	}
	for i, srv := range cfg.Signaling.ICEServers {
		if len(srv.URLs) == 0 {
			errs = append(errs, fmt.Errorf("signaling.ice_servers[%d].urls is required", i))
		}
	}

	if cfg.Control.URL == "" {
		errs = append(errs, errors.New("control.url is required"))
	} else if u, err := url.Parse(cfg.Control.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("control.url %q must be a ws or wss URL", cfg.Control.URL))
	}

	if cfg.Audio.InputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d must not be negative", cfg.Audio.InputSampleRate))
	}
	if cfg.Audio.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d must not be negative", cfg.Audio.OutputSampleRate))
	}
	if cfg.Audio.InitialBufferSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.initial_buffer_samples %d must not be negative", cfg.Audio.InitialBufferSamples))
	}
	if cfg.Audio.MaxBufferSamples > 0 && cfg.Audio.InitialBufferSamples > cfg.Audio.MaxBufferSamples {
		errs = append(errs, fmt.Errorf("audio.initial_buffer_samples %d exceeds audio.max_buffer_samples %d", cfg.Audio.InitialBufferSamples, cfg.Audio.MaxBufferSamples))
	}
	if cfg.Audio.ChunkSizeBytes < 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size_bytes %d must not be negative", cfg.Audio.ChunkSizeBytes))
	}

	if cfg.Inference.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("inference.max_tokens %d must not be negative", cfg.Inference.MaxTokens))
	}
	if cfg.Inference.TopP < 0 || cfg.Inference.TopP > 1 {
		errs = append(errs, fmt.Errorf("inference.top_p %.2f is out of range (0, 1]", cfg.Inference.TopP))
	}
	if cfg.Inference.Temperature < 0 || cfg.Inference.Temperature > 2 {
		errs = append(errs, fmt.Errorf("inference.temperature %.2f is out of range [0, 2]", cfg.Inference.Temperature))
	}

	if cfg.Reconnect.BaseDelayMS < 0 {
		errs = append(errs, fmt.Errorf("reconnect.base_delay_ms %d must not be negative", cfg.Reconnect.BaseDelayMS))
	}
	if cfg.Reconnect.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_attempts %d must not be negative", cfg.Reconnect.MaxAttempts))
	}

	return errors.Join(errs...)
}
