// Package otel configures process-wide OpenTelemetry tracing.
package otel

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// StdoutEndpoint selects the stdout exporter instead of OTLP over HTTP.
const StdoutEndpoint = "stdout"

// Config is read from CHAOS_ARCHITECT_OTEL_* variables. Tracing stays off
// until Endpoint is set.
type Config struct {
	Enabled     bool    `env:"OTEL_ENABLED" envDefault:"true"`
	Endpoint    string  `env:"OTEL_ENDPOINT"`
	SampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`

	// Stdout receives spans when Endpoint is StdoutEndpoint. Nil means stderr.
	Stdout io.Writer
}

func (c Config) active() bool {
	return c.Enabled && strings.TrimSpace(c.Endpoint) != ""
}

// Setup registers a global tracer provider for service and returns the
// function that flushes it. When cfg is inactive nothing is registered and
// the returned function is a no-op.
func Setup(ctx context.Context, service string, cfg Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.active() {
		return noop, nil
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return noop, fmt.Errorf("otel sample ratio %v outside [0, 1]", cfg.SampleRatio)
	}

	exporter, err := cfg.exporter(ctx)
	if err != nil {
		return noop, fmt.Errorf("otel exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider.Shutdown, nil
}

func (c Config) exporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(c.Endpoint)
	if !strings.EqualFold(endpoint, StdoutEndpoint) {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	}
	out := c.Stdout
	if out == nil {
		out = os.Stderr
	}
	return stdouttrace.New(stdouttrace.WithWriter(out))
}
