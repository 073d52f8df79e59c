// Package tracing holds the tracing conventions of the RPC backend: span
// naming, error recording, and a small tracer provider for command line use.
//
// NOTE: Span names may change unexpectedly and spans may be added or removed.
//
// Spans are always started through the global OpenTelemetry tracer provider,
// which is a no-op unless an application installs one. Exporters for
// NewTracerProvider are selected with OTEL_TRACES_EXPORTER, a comma-separated
// list of:
//
//   - console: write spans as JSON to the writer handed to NewTracerProvider
//   - none
//
// To propagate trace context to the daemon, enable HTTP instrumentation on
// the backend with rpc.WithTracing.
package tracing
