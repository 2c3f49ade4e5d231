package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hestami-ai/steward"
)

// tracerName is the instrumentation scope name for steward tracing.
const tracerName = "github.com/hestami-ai/steward"

// Tracing returns middleware that wraps action execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: steward.action, steward.tenant_id,
// steward.actor_id, steward.idempotency_key. On error, the span status
// is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, req *steward.Request, next Handler) error {
		ctx, span := tracer.Start(ctx, "steward.action.execute",
			trace.WithAttributes(
				attribute.String("steward.action", req.Action),
				attribute.String("steward.tenant_id", req.TenantID),
				attribute.String("steward.actor_id", req.ActorID),
				attribute.String("steward.idempotency_key", req.IdempotencyKey),
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
