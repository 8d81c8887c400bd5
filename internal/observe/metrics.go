// Package observe provides application-wide observability primitives for
// voxdraft: OpenTelemetry metrics, tracing, and trace-aware structured
// logging.
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

// meterName is the instrumentation scope name used for all voxdraft metrics.
const meterName = "github.com/voxdraft/voxdraft"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ChannelConnects counts connection attempts on the duplex channel.
	// Use with attribute: attribute.String("status", "ok"|"error").
	ChannelConnects metric.Int64Counter

	// FramesSent counts 20ms capture frames written to the channel.
	FramesSent metric.Int64Counter

	// PlaybackBytes counts PCM bytes handed to the playback pipeline.
	PlaybackBytes metric.Int64Counter

	// EventsReceived counts inbound structured events. Use with attribute:
	//   attribute.String("type", ...)
	EventsReceived metric.Int64Counter

	// WizardRequestDuration tracks wizard HTTP round-trip latency. Use with
	// attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	WizardRequestDuration metric.Float64Histogram

	// ActiveSessions tracks the number of live sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for the
// wizard HTTP round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChannelConnects, err = m.Int64Counter("voxdraft.channel.connects",
		metric.WithDescription("Total duplex channel connection attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("voxdraft.capture.frames_sent",
		metric.WithDescription("Total capture frames written to the channel."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackBytes, err = m.Int64Counter("voxdraft.playback.bytes",
		metric.WithDescription("Total PCM bytes handed to playback."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.EventsReceived, err = m.Int64Counter("voxdraft.channel.events",
		metric.WithDescription("Total inbound structured events by type."),
	); err != nil {
		return nil, err
	}
	if met.WizardRequestDuration, err = m.Float64Histogram("voxdraft.wizard.request.duration",
		metric.WithDescription("Wizard HTTP request latency by operation and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxdraft.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordConnect records one channel connection attempt.
func (m *Metrics) RecordConnect(ctx context.Context, status string) {
	m.ChannelConnects.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordFrameSent records one outbound capture frame.
func (m *Metrics) RecordFrameSent(ctx context.Context) {
	m.FramesSent.Add(ctx, 1)
}

// RecordPlayback records bytes handed to the playback pipeline.
func (m *Metrics) RecordPlayback(ctx context.Context, n int) {
	m.PlaybackBytes.Add(ctx, int64(n))
}

// RecordEvent records one inbound structured event by type.
func (m *Metrics) RecordEvent(ctx context.Context, eventType string) {
	m.EventsReceived.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}

// RecordWizardRequest records one wizard HTTP round trip.
func (m *Metrics) RecordWizardRequest(ctx context.Context, op, status string, seconds float64) {
	m.WizardRequestDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}
