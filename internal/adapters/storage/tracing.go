package storage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "rsvp-api/internal/adapters/storage"

// startSpan opens a span for a store operation. The email is recorded as the
// partition key attribute.
func startSpan(ctx context.Context, backend, op, email string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, backend+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", backend),
			attribute.String("db.operation", op),
			attribute.String("rsvp.email", email),
		),
	)
}

// endSpan records err on the span, if any, and ends it
func endSpan(span trace.Span, err error) {
	if err != nil && !IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
