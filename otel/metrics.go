package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/toolstream/tool"
)

// Metric instrument names.
const (
	MetricInvocations = "toolstream.tool.invocations"
	MetricItems       = "toolstream.tool.items"
	MetricLatency     = "toolstream.tool.latency"
	MetricInFlight    = "toolstream.tool.in_flight"
)

// MetricsObserver records invocation counts, produced items, latency and
// the in-flight gauge.
type MetricsObserver struct {
	invocations metric.Int64Counter
	items       metric.Int64Counter
	latency     metric.Float64Histogram
	inFlight    metric.Int64UpDownCounter
}

// NewMetricsObserver creates the instruments on meter.
func NewMetricsObserver(meter metric.Meter) (*MetricsObserver, error) {
	invocations, err := meter.Int64Counter(MetricInvocations,
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}

	items, err := meter.Int64Counter(MetricItems,
		metric.WithDescription("Number of output items produced by tools"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram(MetricLatency,
		metric.WithDescription("Tool invocation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64UpDownCounter(MetricInFlight,
		metric.WithDescription("Tool invocations currently running"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsObserver{
		invocations: invocations,
		items:       items,
		latency:     latency,
		inFlight:    inFlight,
	}, nil
}

// ObserveStart implements tool.Observer.
func (m *MetricsObserver) ObserveStart(start tool.InvocationStart) {
	m.inFlight.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tool_name", start.ToolName),
	))
}

// ObserveFinish implements tool.Observer.
func (m *MetricsObserver) ObserveFinish(obs tool.InvocationObservation) {
	ctx := context.Background()
	if obs.HandlerRan {
		m.inFlight.Add(ctx, -1, metric.WithAttributes(
			attribute.String("tool_name", obs.ToolName),
		))
	}

	options := metric.WithAttributes(observationAttributes(obs)...)
	m.invocations.Add(ctx, 1, options)
	m.latency.Record(ctx, obs.Duration.Seconds(), options)
	if obs.Items > 0 {
		m.items.Add(ctx, int64(obs.Items), options)
	}
}

func observationAttributes(obs tool.InvocationObservation) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", obs.ToolName),
		attribute.String("mode", string(obs.Mode)),
		attribute.Bool("success", obs.Success),
	}
	if obs.Kind != "" {
		attrs = append(attrs, attribute.String("kind", string(obs.Kind)))
	}
	if obs.ErrorKind != "" {
		attrs = append(attrs, attribute.String("error_kind", obs.ErrorKind))
	}
	return attrs
}

var _ tool.Observer = (*MetricsObserver)(nil)
