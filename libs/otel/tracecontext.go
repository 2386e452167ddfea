package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// W3C trace context keys, as stored in outbox rows and message headers.
const (
	KeyTraceparent = "traceparent"
	KeyTracestate  = "tracestate"
)

// TraceContextStrings serializes the span context of ctx so it can be
// persisted and restored later, e.g. by an outbox publisher.
func TraceContextStrings(ctx context.Context) (traceparent string, tracestate string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier[KeyTraceparent], carrier[KeyTracestate]
}

func ContextWithTraceContext(ctx context.Context, traceparent string, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{KeyTraceparent: traceparent}
	if tracestate != "" {
		carrier[KeyTracestate] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
