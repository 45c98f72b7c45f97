// Package telemetry wires the OpenTelemetry tracer provider used around
// every pipeline stage and collaborator call, grounded on the teacher's
// react-agent tracing setup and the task execution service's span usage.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls tracer-provider construction.
type Config struct {
	ServiceName string
	// Endpoint is the OTLP/HTTP collector address, e.g. "localhost:4318".
	// Empty disables export (a no-op tracer is installed).
	Endpoint string
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Setup installs a global TracerProvider per cfg and returns its Shutdown.
func Setup(ctx context.Context, cfg Config) (Shutdown, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(shutdownCtx context.Context) error {
		c, cancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(c)
	}, nil
}

// Tracer returns the named tracer from the global provider, used by
// collaborator clients and the dispatcher to start stage spans.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a span named op under tracer name, returning the
// derived context and the span, whose End callers defer.
func StartSpan(ctx context.Context, tracerName, op string, attrs ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer(tracerName).Start(ctx, op, attrs...)
}
