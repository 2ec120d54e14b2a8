// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge so the standard
// /metrics endpoint keeps working.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/Twaha07/voice-interactive-translation-assistant"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FramesSent counts encoded microphone frames delivered to the transport.
	FramesSent metric.Int64Counter

	// FramesDropped counts frames discarded because the transport was not
	// ready or the write failed. Frame loss is by design; this makes it visible.
	FramesDropped metric.Int64Counter

	// ChunksScheduled counts synthesized audio chunks handed to the playback
	// scheduler.
	ChunksScheduled metric.Int64Counter

	// DecodeErrors counts malformed inbound audio payloads that were dropped.
	DecodeErrors metric.Int64Counter

	// Interrupts counts barge-in interruptions reported by the model.
	Interrupts metric.Int64Counter

	// Turns counts completed conversation turns.
	Turns metric.Int64Counter

	// SessionDuration tracks session lifetime from connect to teardown.
	SessionDuration metric.Float64Histogram

	// ActiveSessions tracks the number of live sessions (0 or 1 by design;
	// the gauge makes a violation observable).
	ActiveSessions metric.Int64UpDownCounter
}

// durationBuckets defines histogram bucket boundaries in seconds for session
// lifetimes.
var durationBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 900,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesSent, err = m.Int64Counter("vita.frames.sent",
		metric.WithDescription("Encoded microphone frames delivered to the transport."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("vita.frames.dropped",
		metric.WithDescription("Microphone frames dropped before or during send."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("vita.playback.chunks",
		metric.WithDescription("Synthesized audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("vita.decode.errors",
		metric.WithDescription("Malformed inbound audio payloads dropped."),
	); err != nil {
		return nil, err
	}
	if met.Interrupts, err = m.Int64Counter("vita.playback.interrupts",
		metric.WithDescription("Barge-in interruptions reported by the model."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("vita.turns",
		metric.WithDescription("Completed conversation turns."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("vita.session.duration",
		metric.WithDescription("Session lifetime from connect to teardown."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("vita.active_sessions",
		metric.WithDescription("Number of live translation sessions."),
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

// RecordTeardown records session end: duration histogram sample plus the
// active-session gauge decrement, tagged with the terminal status.
func (m *Metrics) RecordTeardown(ctx context.Context, seconds float64, status string) {
	m.SessionDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("status", status)))
	m.ActiveSessions.Add(ctx, -1)
}
