package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrContentKind    = attribute.Key("content.kind")
	AttrContentVariant = attribute.Key("content.variant")
	AttrContentStatus  = attribute.Key("content.status")
	AttrLockOutcome    = attribute.Key("content.lock.outcome")
	AttrLocalDate      = attribute.Key("content.local_date")
)

// StartSpan starts a span when tracer is non-nil, otherwise returns the current span.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError marks span failed with a generic status; details stay in the event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
