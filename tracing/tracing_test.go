package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanNaming(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := Span(context.Background(), "rpc", "Send")
	EndWithError(span, nil)

	_, span = Span(context.Background(), "rpc", "Stream")
	EndWithError(span, errors.New("boom"))

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "rpc.Send", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, "rpc.Stream", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "boom", ended[1].Status().Description)
}

func TestNewTracerProvider(t *testing.T) {
	t.Run("no exporters is a no-op", func(t *testing.T) {
		tp, err := NewTracerProvider(nil, nil)
		require.NoError(t, err)
		require.NoError(t, tp.Shutdown(context.Background()))
	})

	t.Run("console writes spans", func(t *testing.T) {
		var buf bytes.Buffer
		tp, err := NewTracerProvider([]string{"console"}, &buf)
		require.NoError(t, err)

		_, span := tp.Tracer("test").Start(context.Background(), "rpc.Send")
		span.End()
		require.NoError(t, tp.Shutdown(context.Background()))
		assert.Contains(t, buf.String(), "rpc.Send")
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := NewTracerProvider([]string{"jaeger"}, nil)
		require.Error(t, err)
	})
}

func TestExportersFromEnv(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "console, none,")
	assert.Equal(t, []string{"console", "none"}, ExportersFromEnv())
}

func TestNewTracerProviderIsGlobal(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewTracerProvider([]string{"console"}, &buf)
	require.NoError(t, err)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := Span(context.Background(), "RPC", "Send")
	EndWithError(span, nil)
	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"RPC.Send"`)

	noop, err := NewTracerProvider([]string{"none"}, nil)
	require.NoError(t, err)
	otel.SetTracerProvider(noop)
	require.NoError(t, noop.Shutdown(context.Background()))
}
