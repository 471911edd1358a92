// Package telemetry bridges the orchestration core to OpenTelemetry. It is
// an observability collaborator: a bus middleware records every surviving
// event as a span carrying the event's own trace/span identifiers as
// attributes so external tracing backends can correlate request flows.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrelay/bus"
	"github.com/hupe1980/agentrelay/core"
)

const tracerName = "github.com/hupe1980/agentrelay"

// NewBusMiddleware returns a bus middleware that records each event as a
// completed span on the given provider (or the global provider when nil).
// The middleware always forwards the event unchanged.
func NewBusMiddleware(tp trace.TracerProvider) bus.Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)

	return func(ev core.Event) (core.Event, bool) {
		_, span := tracer.Start(context.Background(), ev.Type,
			trace.WithSpanKind(trace.SpanKindProducer),
			trace.WithTimestamp(ev.Timestamp),
		)
		span.SetAttributes(
			attribute.String("agentrelay.event.id", ev.ID),
			attribute.String("agentrelay.event.type", ev.Type),
			attribute.String("agentrelay.event.source", ev.Source),
			attribute.String("agentrelay.trace_id", ev.TraceID),
			attribute.String("agentrelay.span_id", ev.SpanID),
			attribute.String("agentrelay.parent_span_id", ev.ParentSpanID),
		)
		span.End()

		return ev, true
	}
}
