package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/readalong"

// Span attribute keys for lesson spans.
const (
	AttrLessonID       = attribute.Key("lesson.id")
	AttrLessonLanguage = attribute.Key("lesson.language")
	AttrLessonSteps    = attribute.Key("lesson.steps")
	AttrLessonOutcome  = attribute.Key("lesson.outcome")
	AttrAttempts       = attribute.Key("lesson.attempts")
	AttrCorrect        = attribute.Key("lesson.correct_attempts")
)

// Tracer returns the tutor's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartLessonSpan starts the span covering one lesson run, from the first
// instruction to completion or cancellation. End it with [EndLessonSpan].
func StartLessonSpan(ctx context.Context, lessonID, language string, steps int) (context.Context, trace.Span) {
	return StartSpan(ctx, "lesson "+lessonID,
		trace.WithNewRoot(),
		trace.WithAttributes(
			AttrLessonID.String(lessonID),
			AttrLessonLanguage.String(language),
			AttrLessonSteps.Int(steps),
		),
	)
}

// EndLessonSpan records how the lesson ended and ends span. A nil span is
// ignored.
func EndLessonSpan(span trace.Span, outcome string, attempts, correct int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		AttrLessonOutcome.String(outcome),
		AttrAttempts.Int(attempts),
		AttrCorrect.Int(correct),
	)
	span.End()
}

// RecordError marks span as failed with err. A nil err is a no-op.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID returns the trace id of the span in ctx, or "".
// HTTP clients see it in the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
