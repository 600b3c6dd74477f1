// Package tracing sets up OpenTelemetry tracing for the pipeline stages.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/HatiCode/tsdash"

// Exporter names.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Provider owns the tracer used by the application.
type Provider struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// New creates a provider for the given exporter. "none" returns a no-op
// tracer; "stdout" writes spans to stdout.
func New(exporter, version string) (*Provider, error) {
	return NewWithWriter(exporter, version, os.Stdout)
}

// NewWithWriter is New with an explicit destination for the stdout exporter.
func NewWithWriter(exporter, version string, w io.Writer) (*Provider, error) {
	switch exporter {
	case "", ExporterNone:
		return &Provider{
			tracer:   noop.NewTracerProvider().Tracer(instrumentationName),
			shutdown: func(context.Context) error { return nil },
		}, nil
	case ExporterStdout:
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", exporter)
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", "tsdash"),
		attribute.String("service.version", version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{
		tracer:   tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(version)),
		shutdown: tp.Shutdown,
	}, nil
}

// Tracer returns the application tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
