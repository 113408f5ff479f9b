// Package observe provides application-wide observability primitives for
// phonio: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all phonio metrics.
const meterName = "github.com/phonio-ai/phonio"

// Direction labels for audio-frame metrics.
const (
	DirectionCarrierToModel = "carrier_to_model"
	DirectionModelToCarrier = "model_to_carrier"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Audio path counters ---

	// FramesForwarded counts audio frames delivered across the bridge.
	// Use with attribute.String("direction", ...).
	FramesForwarded metric.Int64Counter

	// FramesDropped counts carrier frames evicted from a full queue.
	FramesDropped metric.Int64Counter

	// BargeIns counts caller interruptions of assistant playback.
	BargeIns metric.Int64Counter

	// CodecErrors counts malformed audio payloads (odd PCM lengths,
	// undecodable base64, unsupported rates).
	CodecErrors metric.Int64Counter

	// --- Brain counters ---

	// ClassifierDecisions counts intent classifications. Use with attributes:
	//   attribute.String("stage", "trivial"|"verb"|"phonetic"|"llm"|"fail_open")
	//   attribute.String("intent", "conversation"|"action")
	ClassifierDecisions metric.Int64Counter

	// --- Latency histograms ---

	// ExecutorDuration tracks command dispatch latency.
	ExecutorDuration metric.Float64Histogram

	// ClassifierDuration tracks LLM classification latency.
	ClassifierDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveCalls tracks the number of live call sessions.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Executor
// dispatches can legitimately run for tens of seconds, so the upper buckets
// stretch to the 90 s deadline.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 90,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesForwarded, err = m.Int64Counter("phonio.bridge.frames_forwarded",
		metric.WithDescription("Audio frames delivered across the bridge by direction."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("phonio.bridge.frames_dropped",
		metric.WithDescription("Carrier frames evicted from a full queue."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("phonio.bridge.barge_ins",
		metric.WithDescription("Caller interruptions of assistant playback."),
	); err != nil {
		return nil, err
	}
	if met.CodecErrors, err = m.Int64Counter("phonio.audio.codec_errors",
		metric.WithDescription("Malformed audio payloads encountered."),
	); err != nil {
		return nil, err
	}
	if met.ClassifierDecisions, err = m.Int64Counter("phonio.brain.classifier_decisions",
		metric.WithDescription("Intent classifications by stage and resulting intent."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ExecutorDuration, err = m.Float64Histogram("phonio.executor.duration",
		metric.WithDescription("Latency of command executor dispatches."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassifierDuration, err = m.Float64Histogram("phonio.brain.classifier_duration",
		metric.WithDescription("Latency of LLM intent classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("phonio.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("phonio.http.request.duration",
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

// RecordFrameForwarded records one forwarded audio frame for a direction.
func (m *Metrics) RecordFrameForwarded(ctx context.Context, direction string) {
	m.FramesForwarded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("direction", direction)),
	)
}

// RecordFrameDropped records one evicted carrier frame.
func (m *Metrics) RecordFrameDropped(ctx context.Context) {
	m.FramesDropped.Add(ctx, 1)
}

// RecordBargeIn records one caller interruption.
func (m *Metrics) RecordBargeIn(ctx context.Context) {
	m.BargeIns.Add(ctx, 1)
}

// RecordCodecError records one malformed audio payload.
func (m *Metrics) RecordCodecError(ctx context.Context) {
	m.CodecErrors.Add(ctx, 1)
}

// RecordClassifierDecision records one intent classification with the stage
// that decided it and the resulting intent.
func (m *Metrics) RecordClassifierDecision(ctx context.Context, stage, intent string) {
	m.ClassifierDecisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("intent", intent),
		),
	)
}
