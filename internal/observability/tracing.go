// Package observability wires OpenTelemetry tracing and metrics export for
// the gateway process. Grounded on the teacher's own composition-root style
// (a single setup function returning a shutdown callback, called once from
// cmd/), generalized from the teacher's Prometheus-only instrumentation to
// also emit traces -- spec.md's ambient stack calls for a span per pipeline
// stage, which a counter/histogram pair alone cannot express.
package observability

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the resource attribute every span and metric carries.
const ServiceName = "sentinelgate"

// Shutdown flushes and stops the providers set up by Setup.
type Shutdown func(ctx context.Context) error

// Setup installs a global TracerProvider and MeterProvider backed by stdout
// exporters (the teacher ships no tracing backend of its own, so stdout is
// the same "observable without standing up infrastructure" default the
// teacher's own metrics registry uses before a real Prometheus scrape
// target exists). w is typically process stdout; tests pass io.Discard.
func Setup(ctx context.Context, w io.Writer, version string) (trace.Tracer, Shutdown, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("observability: build resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, nil, fmt.Errorf("observability: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("observability: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	tracer := tp.Tracer(ServiceName)

	shutdown := func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("observability: shutdown tracer provider: %w", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("observability: shutdown meter provider: %w", err)
		}
		return nil
	}

	return tracer, shutdown, nil
}
