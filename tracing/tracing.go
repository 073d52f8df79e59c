package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	ipfs "github.com/ipfs/kubo-rpc-backend"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	traceapi "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "kubo-rpc-backend"

// ShutdownTracerProvider is a TracerProvider that can be shut down, so it can
// be installed with otel.SetTracerProvider and flushed on exit.
type ShutdownTracerProvider interface {
	traceapi.TracerProvider
	Shutdown(ctx context.Context) error
}

// noopShutdownTracerProvider adds a no-op Shutdown method to a TracerProvider.
type noopShutdownTracerProvider struct{ traceapi.TracerProvider }

func (n *noopShutdownTracerProvider) Shutdown(ctx context.Context) error { return nil }

// ExportersFromEnv returns the exporter names listed in OTEL_TRACES_EXPORTER.
func ExportersFromEnv() []string {
	var names []string
	for _, s := range strings.Split(os.Getenv("OTEL_TRACES_EXPORTER"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			names = append(names, s)
		}
	}
	return names
}

func buildExporters(names []string, w io.Writer) ([]trace.SpanExporter, error) {
	var exporters []trace.SpanExporter
	for _, name := range names {
		switch name {
		case "console":
			exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
			if err != nil {
				return nil, fmt.Errorf("building console exporter: %w", err)
			}
			exporters = append(exporters, exporter)
		case "none", "":
			continue
		default:
			return nil, fmt.Errorf("unknown or unsupported exporter '%s'", name)
		}
	}
	return exporters, nil
}

// NewTracerProvider creates and configures a TracerProvider for the named
// exporters. Console output goes to w.
func NewTracerProvider(names []string, w io.Writer) (ShutdownTracerProvider, error) {
	exporters, err := buildExporters(names, w)
	if err != nil {
		return nil, err
	}
	if len(exporters) == 0 {
		return &noopShutdownTracerProvider{TracerProvider: noop.NewTracerProvider()}, nil
	}

	options := []trace.TracerProviderOption{}
	for _, exporter := range exporters {
		options = append(options, trace.WithSyncer(exporter))
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", "kubo-rpc-backend"),
			attribute.String("service.version", ipfs.CurrentVersionNumber),
		),
	)
	if err != nil {
		return nil, err
	}
	options = append(options, trace.WithResource(r))

	return trace.NewTracerProvider(options...), nil
}

// Span starts a new span using the standard naming conventions.
func Span(ctx context.Context, componentName string, spanName string, opts ...traceapi.SpanStartOption) (context.Context, traceapi.Span) {
	return otel.Tracer(tracerName).Start(ctx, fmt.Sprintf("%s.%s", componentName, spanName), opts...)
}

// EndWithError records err, if any, and ends span.
func EndWithError(span traceapi.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
