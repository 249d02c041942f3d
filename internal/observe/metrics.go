// Package observe provides application-wide observability primitives for
// Voxwire: OpenTelemetry metrics, tracing, and structured logging helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxwire metrics.
const meterName = "github.com/voxwire/voxwire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	meter metric.Meter

	// RenderDuration tracks time spent filling one playback frame. The
	// render path is real-time, so callers batch observations instead of
	// recording from inside the audio callback.
	RenderDuration metric.Float64Histogram

	// BargeIns counts user interruptions that flushed pending playback.
	BargeIns metric.Int64Counter

	// OrderingRejections counts protocol operations refused because the
	// session state machine was not in the required state.
	OrderingRejections metric.Int64Counter

	// DroppedEnvelopes counts inbound envelopes discarded as malformed or
	// unrecognized.
	DroppedEnvelopes metric.Int64Counter

	// ChunksTransferred counts data-channel audio chunks. Use with
	// attribute.String("direction", "sent"|"received").
	ChunksTransferred metric.Int64Counter

	// ReconnectAttempts counts scheduled transport reconnections.
	ReconnectAttempts metric.Int64Counter

	// TerminalDisconnects counts sessions abandoned after the reconnection
	// budget ran out.
	TerminalDisconnects metric.Int64Counter

	// ActiveSessions tracks the number of live conversation sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// renderBuckets defines histogram bucket boundaries (in seconds) sized for
// per-frame playback rendering, which must stay well under the frame period
// (10 ms at typical device configurations).
var renderBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.RenderDuration, err = m.Float64Histogram("voxwire.playback.render.duration",
		metric.WithDescription("Time spent filling one playback frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(renderBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("voxwire.playback.barge_ins",
		metric.WithDescription("User interruptions that flushed pending playback."),
	); err != nil {
		return nil, err
	}
	if met.OrderingRejections, err = m.Int64Counter("voxwire.protocol.ordering_rejections",
		metric.WithDescription("Protocol operations refused by the session state machine."),
	); err != nil {
		return nil, err
	}
	if met.DroppedEnvelopes, err = m.Int64Counter("voxwire.protocol.dropped_envelopes",
		metric.WithDescription("Inbound envelopes discarded as malformed or unrecognized."),
	); err != nil {
		return nil, err
	}
	if met.ChunksTransferred, err = m.Int64Counter("voxwire.transport.chunks",
		metric.WithDescription("Data-channel audio chunks by direction."),
	); err != nil {
		return nil, err
	}
	if met.ReconnectAttempts, err = m.Int64Counter("voxwire.transport.reconnect_attempts",
		metric.WithDescription("Scheduled transport reconnection attempts."),
	); err != nil {
		return nil, err
	}
	if met.TerminalDisconnects, err = m.Int64Counter("voxwire.transport.terminal_disconnects",
		metric.WithDescription("Sessions abandoned after the reconnection budget ran out."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxwire.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RegisterUnderflowSource registers an observable counter that reads the
// cumulative playback underflow sample count from source at collection time.
// The render path increments a plain atomic; sampling it here keeps metric
// recording out of the real-time callback.
func (m *Metrics) RegisterUnderflowSource(source func() int64) error {
	counter, err := m.meter.Int64ObservableCounter("voxwire.playback.underflow_samples",
		metric.WithDescription("Samples rendered as silence because the buffer ran dry."),
	)
	if err != nil {
		return err
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(counter, source())
		return nil
	}, counter)
	return err
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordChunks records n transferred chunks in the given direction
// ("sent" or "received").
func (m *Metrics) RecordChunks(ctx context.Context, direction string, n int64) {
	m.ChunksTransferred.Add(ctx, n,
		metric.WithAttributes(attribute.String("direction", direction)),
	)
}
