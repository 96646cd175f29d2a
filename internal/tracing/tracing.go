// Package tracing builds the OpenTelemetry tracer provider that receives
// pipeline spans. Spans are batched and exported over OTLP/HTTP, which
// Jaeger and the OpenTelemetry Collector both accept on port 4318.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Iron-Ham/foresight/internal/logging"
)

// Options configures span export.
type Options struct {
	Enabled     bool
	Endpoint    string // host:port of the collector
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

// Provider is a tracer provider that must be shut down to flush spans.
type Provider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

// New returns a provider exporting to opts.Endpoint, or a no-op provider
// when tracing is disabled. The exporter connects lazily, so an unreachable
// collector only shows up as export errors.
func New(ctx context.Context, opts Options, logger *logging.Logger) (*Provider, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if !opts.Enabled {
		logger.Debug("tracing disabled")
		return &Provider{
			TracerProvider: noop.NewTracerProvider(),
			shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	clientOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	logger.Info("tracing enabled", "endpoint", opts.Endpoint, "sample_ratio", opts.SampleRatio)
	return NewWithExporter(exporter, opts), nil
}

// NewWithExporter returns a provider batching sampled spans to exporter.
func NewWithExporter(exporter sdktrace.SpanExporter, opts Options) *Provider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", opts.ServiceName),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
	)
	return &Provider{TracerProvider: tp, shutdown: tp.Shutdown}
}

// Shutdown flushes buffered spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
