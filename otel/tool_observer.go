package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/toolstream/tool"
)

// ToolObserver records invocations as metrics and, when a tracer is set,
// as spans.
type ToolObserver struct {
	metrics *MetricsObserver
	tracing *TracingObserver
}

// NewToolObserver creates a tool observer bound to the provided meter and
// tracer. A nil tracer disables spans.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	metrics, err := NewMetricsObserver(meter)
	if err != nil {
		return nil, err
	}
	o := &ToolObserver{metrics: metrics}
	if tracer != nil {
		o.tracing = NewTracingObserver(tracer)
	}
	return o, nil
}

// ObserveStart implements tool.Observer.
func (o *ToolObserver) ObserveStart(start tool.InvocationStart) {
	if o == nil {
		return
	}
	o.metrics.ObserveStart(start)
	if o.tracing != nil {
		o.tracing.ObserveStart(start)
	}
}

// ObserveFinish implements tool.Observer.
func (o *ToolObserver) ObserveFinish(obs tool.InvocationObservation) {
	if o == nil {
		return
	}
	o.metrics.ObserveFinish(obs)
	if o.tracing != nil {
		o.tracing.ObserveFinish(obs)
	}
}

var _ tool.Observer = (*ToolObserver)(nil)
