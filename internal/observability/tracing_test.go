package observability

import (
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

func TestInitTracing(t *testing.T) {
	ctx := context.Background()

	shutdown, err := InitTracing(ctx, "gigboard-test", TracingConfig{Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx))

	_, err = InitTracing(ctx, "gigboard-test", TracingConfig{Exporter: "carrier-pigeon"})
	assert.Error(t, err)

	shutdown, err = InitTracing(ctx, "gigboard-test", TracingConfig{Exporter: "stdout", SampleRatio: 0.5})
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx))
}

func TestEndSpanRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartSpan(context.Background(), "lifecycle.apply")
	EndSpan(span, errors.New("conflict"))

	_, ok := StartSpan(context.Background(), "lifecycle.get_post")
	EndSpan(ok, nil)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "lifecycle.apply", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}
