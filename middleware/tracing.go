package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mwerk/intake/exec"
	"github.com/mwerk/intake/pipeline"
)

// tracerName is the instrumentation scope name for intake tracing.
const tracerName = "github.com/mwerk/intake"

// Tracing returns middleware that wraps step execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through with zero
// overhead.
//
// Span attributes include: intake.job.id, intake.step, intake.retry_count,
// intake.application_id. On error, the span status is set to codes.Error
// with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, in exec.Input, step pipeline.Step, next Handler) error {
		ctx, span := tracer.Start(ctx, "intake.step.execute",
			trace.WithAttributes(
				attribute.String("intake.job.id", in.JobID.String()),
				attribute.String("intake.step", step.String()),
				attribute.Int("intake.retry_count", in.RetryCount),
				attribute.String("intake.application_id", in.ApplicationID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
