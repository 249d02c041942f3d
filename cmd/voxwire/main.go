// Command voxwire is a real-time speech conversation client: microphone
// audio goes up over a WebRTC data channel and a protocol websocket,
// synthesized speech comes back and is rendered through a jitter buffer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxwire/voxwire/internal/client"
	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/health"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/pkg/audio/device"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "voxwire.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxwire: %v\n", err)
		return 1
	}

	slog.SetDefault(newLogger(cfg.Client.LogLevel))
	slog.Info("voxwire starting",
		"version", version,
		"config", *configPath,
		"signaling", cfg.Signaling.Endpoint,
		"control", cfg.Control.URL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxwire",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	session, err := client.New(cfg, observe.DefaultMetrics())
	if err != nil {
		slog.Error("failed to build session", "err", err)
		return 1
	}

	if cfg.Client.MetricsAddr != "" {
		go serveTelemetry(cfg.Client.MetricsAddr, session)
	}

	audioClient, err := device.NewClient(device.Config{
		CaptureRate:  cfg.Audio.InputSampleRate,
		PlaybackRate: cfg.Audio.OutputSampleRate,
	}, session.Renderer())
	if err != nil {
		slog.Error("failed to open audio devices", "err", err)
		return 1
	}
	defer audioClient.Close()

	if err := audioClient.StartCapture(session.CaptureFrame); err != nil {
		slog.Error("failed to start capture", "err", err)
		return 1
	}
	if err := audioClient.StartPlayback(); err != nil {
		slog.Error("failed to start playback", "err", err)
		return 1
	}

	go printTranscripts(session)

	slog.Info("session ready, press Ctrl+C to hang up")
	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("session error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// serveTelemetry exposes the Prometheus scrape endpoint plus liveness and
// readiness probes for the session.
func serveTelemetry(addr string, session *client.Session) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(
		health.Checker{Name: "transport", Check: session.TransportReady},
		health.Checker{Name: "control", Check: session.ControlReady},
	).Register(mux)

	slog.Info("telemetry endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("telemetry endpoint stopped", "err", err)
	}
}

// printTranscripts echoes conversation text to stdout as it accumulates.
func printTranscripts(session *client.Session) {
	for entry := range session.Transcripts() {
		fmt.Printf("[%s] %s\n", entry.Role, entry.Text)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
