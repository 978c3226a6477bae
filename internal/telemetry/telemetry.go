// Package telemetry wires OpenTelemetry tracing for the assessment
// pipeline. When disabled it hands out no-op tracers so callers never
// branch on whether telemetry is on.
package telemetry

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Endpoint string
	Service  string
	Version  string
}

// Provider wires the tracer provider and exposes the tracer.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer

	shutdownTraceProvider func(context.Context) error
}

// NewProvider configures the OTLP trace exporter and provider. When
// disabled, it returns a no-op provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled {
		return &Provider{
			Enabled: false,
			tracer:  trace.NewNoopTracerProvider().Tracer(""),
		}, nil
	}

	log.Printf("telemetry enabled (OpenTelemetry OTLP http) endpoint=%s; if no collector is listening, periodic export warnings are expected", cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{
		Enabled:               true,
		tracer:                tp.Tracer("shockwatch"),
		shutdownTraceProvider: tp.Shutdown,
	}, nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return trace.NewNoopTracerProvider().Tracer("")
	}
	return p.tracer
}

// Shutdown flushes the trace provider.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil || p.shutdownTraceProvider == nil {
		return
	}
	if err := p.shutdownTraceProvider(ctx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
}
