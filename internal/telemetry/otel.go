package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"rsvp-api/internal/config"
)

// Provider wraps the installed tracer provider. A nil or disabled Provider
// is valid and every method is a no-op.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Setup installs the global tracer provider. Tracing is opt-in: without an
// OTLP endpoint, or with tracing disabled, Setup registers nothing and the
// record stores fall back to the no-op tracer.
func Setup(ctx context.Context, cfg config.TelemetryConfig, serviceName string, logger *logrus.Logger) (*Provider, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return &Provider{}, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return &Provider{}, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return &Provider{}, err
	}

	provider := NewProvider(exporter, res)

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"endpoint": cfg.Endpoint,
			"service":  serviceName,
		}).Info("OpenTelemetry tracing enabled")
	}

	return provider, nil
}

// NewProvider batches spans to exporter and installs the result as the
// global tracer provider
func NewProvider(exporter sdktrace.SpanExporter, res *resource.Resource) *Provider {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithBatcher(exporter)}
	if res != nil {
		opts = append(opts, sdktrace.WithResource(res))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{tp: tp}
}

// Enabled reports whether spans are being exported
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// ForceFlush exports every span ended so far. Lambda freezes the execution
// environment after each response, so batched spans must be flushed before
// the handler returns.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.tp.ForceFlush(ctx)
}

// Shutdown flushes pending spans and stops the exporter
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
