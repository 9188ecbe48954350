package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/petal-labs/toolstream"

// SetupConfig configures the SDK providers.
type SetupConfig struct {
	ServiceName string
	// OTLPEndpoint is host:port or a full URL of an OTLP/HTTP collector.
	// Empty keeps spans in-process.
	OTLPEndpoint string
	Insecure     bool
	// SampleRatio is the fraction of root invocations traced.
	SampleRatio float64
	// MetricReader receives metrics. When nil and OTLPEndpoint is set,
	// metrics are pushed to the same collector every MetricInterval.
	MetricReader sdkmetric.Reader
	// MetricInterval is the OTLP push period; zero uses the SDK default.
	MetricInterval time.Duration
}

// Providers holds the SDK tracer and meter providers.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	// MetricReader is the reader attached to MeterProvider, nil when
	// metrics are recorded but never read.
	MetricReader sdkmetric.Reader
}

// collectorTarget is an OTLP/HTTP collector address split into the parts
// both exporters need.
type collectorTarget struct {
	host     string
	basePath string
	insecure bool
}

const (
	tracesPath  = "/v1/traces"
	metricsPath = "/v1/metrics"
)

// parseCollectorEndpoint accepts host:port or a URL. A URL path ending in
// the traces signal path is treated as the collector root, so one setting
// serves traces and metrics.
func parseCollectorEndpoint(endpoint string, insecure bool) (collectorTarget, error) {
	if !strings.Contains(endpoint, "://") {
		return collectorTarget{host: endpoint, insecure: insecure}, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return collectorTarget{}, fmt.Errorf("otel: parse OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return collectorTarget{}, fmt.Errorf("otel: OTLP endpoint %q has no host", endpoint)
	}
	base := strings.TrimSuffix(u.Path, "/")
	base = strings.TrimSuffix(base, tracesPath)
	return collectorTarget{
		host:     u.Host,
		basePath: base,
		insecure: insecure || u.Scheme == "http",
	}, nil
}

// Setup builds tracer and meter providers for cfg.
func Setup(ctx context.Context, cfg SetupConfig) (*Providers, error) {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "toolstream"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: build resource: %w", err)
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	reader := cfg.MetricReader
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		target, err := parseCollectorEndpoint(endpoint, cfg.Insecure)
		if err != nil {
			return nil, err
		}
		traceExporter, err := newTraceExporter(ctx, target)
		if err != nil {
			return nil, err
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(traceExporter))

		if reader == nil {
			metricExporter, err := newMetricExporter(ctx, target)
			if err != nil {
				_ = traceExporter.Shutdown(ctx)
				return nil, err
			}
			var readerOpts []sdkmetric.PeriodicReaderOption
			if cfg.MetricInterval > 0 {
				readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.MetricInterval))
			}
			reader = sdkmetric.NewPeriodicReader(metricExporter, readerOpts...)
		}
	}

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		meterOpts = append(meterOpts, sdkmetric.WithReader(reader))
	}

	return &Providers{
		TracerProvider: sdktrace.NewTracerProvider(traceOpts...),
		MeterProvider:  sdkmetric.NewMeterProvider(meterOpts...),
		MetricReader:   reader,
	}, nil
}

func newTraceExporter(ctx context.Context, target collectorTarget) (*otlptrace.Exporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(target.host),
		otlptracehttp.WithURLPath(target.basePath + tracesPath),
	}
	if target.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel: create OTLP trace exporter: %w", err)
	}
	return exporter, nil
}

func newMetricExporter(ctx context.Context, target collectorTarget) (*otlpmetrichttp.Exporter, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(target.host),
		otlpmetrichttp.WithURLPath(target.basePath + metricsPath),
	}
	if target.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel: create OTLP metric exporter: %w", err)
	}
	return exporter, nil
}

// Tracer returns the toolstream tracer.
func (p *Providers) Tracer() trace.Tracer {
	return p.TracerProvider.Tracer(instrumentationName)
}

// Meter returns the toolstream meter.
func (p *Providers) Meter() metric.Meter {
	return p.MeterProvider.Meter(instrumentationName)
}

// ToolObserver wires a ToolObserver to these providers.
func (p *Providers) ToolObserver() (*ToolObserver, error) {
	return NewToolObserver(p.Meter(), p.Tracer())
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.TracerProvider.Shutdown(ctx),
		p.MeterProvider.Shutdown(ctx),
	)
}
