// Package observe provides the tutor's observability primitives:
// OpenTelemetry metrics, tracing, trace-aware structured logging and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping through the Prometheus exporter set up by [InitProvider]. Tests
// should build their own [Metrics] with [NewMetrics] over a manual reader to
// avoid cross-test pollution. Every Record method is safe to call on a nil
// *Metrics, so components can treat metrics as optional.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/readalong"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// SpeechDuration tracks how long one utterance took to play. Attributes:
	// "status" (ok|error).
	SpeechDuration metric.Float64Histogram

	// CoachDuration tracks dynamic feedback latency. Attributes: "op",
	// "status" (ok|empty).
	CoachDuration metric.Float64Histogram

	// DetectDuration tracks object detection latency.
	DetectDuration metric.Float64Histogram

	// LessonDuration tracks the wall time of completed lessons.
	LessonDuration metric.Float64Histogram

	// Attempts counts answers to prompts. Attributes: "lesson", "outcome".
	Attempts metric.Int64Counter

	// Lessons counts lesson lifecycle events. Attributes: "lesson",
	// "status" (started|completed|cancelled).
	Lessons metric.Int64Counter

	// ProviderRequests counts provider calls. Attributes: "provider",
	// "kind", "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures. Attributes: "provider", "kind".
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// "breaker", "from", "to".
	BreakerTransitions metric.Int64Counter

	// ActiveSessions tracks the number of running lessons.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveClients tracks connected WebSocket clients.
	ActiveClients metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// "method", "path".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds for request latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// lessonBuckets are histogram boundaries in seconds for whole lessons.
var lessonBuckets = []float64{
	15, 30, 60, 120, 300, 600, 1200, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SpeechDuration, err = m.Float64Histogram("readalong.speech.duration",
		metric.WithDescription("Playback time of one spoken utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CoachDuration, err = m.Float64Histogram("readalong.coach.duration",
		metric.WithDescription("Latency of dynamic coaching requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DetectDuration, err = m.Float64Histogram("readalong.vision.duration",
		metric.WithDescription("Latency of object detection requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LessonDuration, err = m.Float64Histogram("readalong.lesson.duration",
		metric.WithDescription("Wall time of completed lessons."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(lessonBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Attempts, err = m.Int64Counter("readalong.attempts",
		metric.WithDescription("Answers to lesson prompts by lesson and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Lessons, err = m.Int64Counter("readalong.lessons",
		metric.WithDescription("Lesson lifecycle events by lesson and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("readalong.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("readalong.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("readalong.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("readalong.active_sessions",
		metric.WithDescription("Number of running lessons."),
	); err != nil {
		return nil, err
	}
	if met.ActiveClients, err = m.Int64UpDownCounter("readalong.active_clients",
		metric.WithDescription("Number of connected WebSocket clients."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("readalong.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] built on
// [otel.GetMeterProvider]. Call it after [InitProvider] so the instruments
// are bound to the exporting provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func status(ok bool, good, bad string) string {
	if ok {
		return good
	}
	return bad
}

// RecordAttempt counts one answer to a prompt.
func (m *Metrics) RecordAttempt(ctx context.Context, lessonID, outcome string) {
	if m == nil {
		return
	}
	m.Attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("lesson", lessonID),
		attribute.String("outcome", outcome),
	))
}

// LessonStarted counts a started lesson and raises the active gauge.
func (m *Metrics) LessonStarted(ctx context.Context, lessonID string) {
	if m == nil {
		return
	}
	m.Lessons.Add(ctx, 1, metric.WithAttributes(
		attribute.String("lesson", lessonID),
		attribute.String("status", "started"),
	))
	m.ActiveSessions.Add(ctx, 1)
}

// LessonEnded counts a finished lesson and lowers the active gauge.
// Completed lessons also record their duration.
func (m *Metrics) LessonEnded(ctx context.Context, lessonID string, completed bool, d time.Duration) {
	if m == nil {
		return
	}
	m.Lessons.Add(ctx, 1, metric.WithAttributes(
		attribute.String("lesson", lessonID),
		attribute.String("status", status(completed, "completed", "cancelled")),
	))
	m.ActiveSessions.Add(ctx, -1)
	if completed {
		m.LessonDuration.Record(ctx, d.Seconds())
	}
}

// RecordSpeech records the playback of one utterance.
func (m *Metrics) RecordSpeech(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SpeechDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("status", status(err == nil, "ok", "error")),
	))
}

// RecordCoach records one coaching request. ok reports whether usable text
// came back.
func (m *Metrics) RecordCoach(ctx context.Context, op string, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.CoachDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status(ok, "ok", "empty")),
	))
}

// RecordDetect records one object detection request.
func (m *Metrics) RecordDetect(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DetectDuration.Record(ctx, d.Seconds())
	m.RecordProviderRequest(ctx, "yolo", "vision", status(err == nil, "ok", "error"))
}

// RecordProviderRequest counts one provider request.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	if m == nil {
		return
	}
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreakerTransition counts one circuit breaker state change. Its
// signature matches the breaker's state change hook once the states are
// rendered as strings.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, from, to string) {
	if m == nil {
		return
	}
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", name),
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// ClientConnected adjusts the connected client gauge by delta.
func (m *Metrics) ClientConnected(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveClients.Add(ctx, delta)
}
