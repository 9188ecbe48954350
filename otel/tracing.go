// Package otel records tool invocations as OpenTelemetry metrics and spans.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/toolstream/tool"
)

// Span names by invocation mode.
const (
	SpanInvoke = "tool.invoke"
	SpanStream = "tool.stream"
)

// TracingObserver opens a span when a handler starts and ends it when the
// invocation finishes. Requests rejected before a handler ran get a span
// that starts and ends at once.
type TracingObserver struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span // invocationID -> span
}

// NewTracingObserver creates a TracingObserver using tracer.
func NewTracingObserver(tracer trace.Tracer) *TracingObserver {
	return &TracingObserver{
		tracer: tracer,
		spans:  make(map[string]trace.Span),
	}
}

// ObserveStart implements tool.Observer.
func (h *TracingObserver) ObserveStart(start tool.InvocationStart) {
	_, span := h.tracer.Start(context.Background(), spanName(start.Mode),
		trace.WithAttributes(
			attribute.String("toolstream.tool_name", start.ToolName),
			attribute.String("toolstream.invocation_id", start.InvocationID),
			attribute.String("toolstream.mode", string(start.Mode)),
			attribute.String("toolstream.kind", string(start.Kind)),
		),
		trace.WithTimestamp(start.Started),
	)

	h.mu.Lock()
	h.spans[start.InvocationID] = span
	h.mu.Unlock()
}

// ObserveFinish implements tool.Observer.
func (h *TracingObserver) ObserveFinish(obs tool.InvocationObservation) {
	h.mu.Lock()
	span, ok := h.spans[obs.InvocationID]
	if ok {
		delete(h.spans, obs.InvocationID)
	}
	h.mu.Unlock()

	if !ok {
		_, span = h.tracer.Start(context.Background(), spanName(obs.Mode),
			trace.WithAttributes(
				attribute.String("toolstream.tool_name", obs.ToolName),
				attribute.String("toolstream.invocation_id", obs.InvocationID),
				attribute.String("toolstream.mode", string(obs.Mode)),
			),
			trace.WithTimestamp(obs.Started),
		)
	}

	span.SetAttributes(
		attribute.Int("toolstream.items", obs.Items),
		attribute.String("toolstream.duration", obs.Duration.String()),
	)
	end := obs.Started.Add(obs.Duration)
	if obs.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetAttributes(attribute.String("toolstream.error_kind", obs.ErrorKind))
		span.SetStatus(codes.Error, obs.ErrorKind)
		span.RecordError(spanError(obs.ErrorKind), trace.WithTimestamp(end))
	}
	span.End(trace.WithTimestamp(end))
}

// ActiveSpanContext returns the span context of a running invocation, or
// an empty SpanContext if none is active.
func (h *TracingObserver) ActiveSpanContext(invocationID string) trace.SpanContext {
	h.mu.Lock()
	span, ok := h.spans[invocationID]
	h.mu.Unlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

func spanName(mode tool.Mode) string {
	if mode == tool.ModeStream {
		return SpanStream
	}
	return SpanInvoke
}

// spanError is a simple error type for recording span errors.
type spanError string

func (e spanError) Error() string { return string(e) }

var _ tool.Observer = (*TracingObserver)(nil)
