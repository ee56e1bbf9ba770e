// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing helpers, and structured-logging glue.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/recall"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// VADDuration tracks time from capture start to confirmed speech end.
	VADDuration metric.Float64Histogram

	// STTDuration tracks time from speech end to finalised transcript.
	STTDuration metric.Float64Histogram

	// ResolverDuration tracks the external resolver round trip.
	ResolverDuration metric.Float64Histogram

	// TTSDuration tracks time from resolver response to end of playback.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks a full turn end to end (speech start to playback
	// end).
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts finalised utterances. Use with attribute:
	//   attribute.String("intent", ...)
	Utterances metric.Int64Counter

	// BargeIns counts playback interruptions by user speech.
	BargeIns metric.Int64Counter

	// DiscardedTurns counts empty-transcript captures dropped before the
	// resolver.
	DiscardedTurns metric.Int64Counter

	// ResolverErrors counts failed resolver calls. Use with attribute:
	//   attribute.String("reason", "timeout"|"failure"|"malformed")
	ResolverErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.VADDuration, "recall.vad.duration", "Time from capture start to confirmed speech end."},
		{&met.STTDuration, "recall.stt.duration", "Time from speech end to finalised transcript."},
		{&met.ResolverDuration, "recall.resolver.duration", "External resolver round-trip latency."},
		{&met.TTSDuration, "recall.tts.duration", "Time from resolver response to end of playback."},
		{&met.TurnDuration, "recall.turn.duration", "Full turn latency, speech start to playback end."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.Utterances, err = m.Int64Counter("recall.utterances",
		metric.WithDescription("Total finalised utterances by intent."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("recall.barge_ins",
		metric.WithDescription("Total playback interruptions by user speech."),
	); err != nil {
		return nil, err
	}
	if met.DiscardedTurns, err = m.Int64Counter("recall.discarded_turns",
		metric.WithDescription("Total empty-transcript captures dropped before the resolver."),
	); err != nil {
		return nil, err
	}
	if met.ResolverErrors, err = m.Int64Counter("recall.resolver.errors",
		metric.WithDescription("Total failed resolver calls by reason."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("recall.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("recall.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordUtterance records a finalised utterance with its intent.
func (m *Metrics) RecordUtterance(ctx context.Context, intent string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

// RecordResolverError records a failed resolver call with its reason.
func (m *Metrics) RecordResolverError(ctx context.Context, reason string) {
	m.ResolverErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
