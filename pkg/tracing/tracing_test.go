package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const testTimeout = 2 * time.Second

func TestInit_Disabled(t *testing.T) {
	tp, shutdown, err := Init(context.Background(), Config{ServiceName: "engage"})
	require.NoError(t, err)
	assert.Nil(t, tp)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_Enabled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	// the gRPC exporter dials lazily so no collector is needed
	tp, shutdown, err := Init(ctx, Config{
		Enabled:        true,
		ServiceName:    "engage",
		ServiceVersion: "test",
		Environment:    "test",
		Endpoint:       "127.0.0.1:4317",
	})
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, shutdown(ctx))
}

func TestShutdown(t *testing.T) {
	t.Run("nil provider", func(t *testing.T) {
		err := Shutdown(context.Background(), nil)
		assert.NoError(t, err)
	})
}

func TestSpanAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(exporter),
	)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		assert.NoError(t, tp.Shutdown(ctx))
	}()

	tests := []struct {
		name       string
		attributes []attribute.KeyValue
	}{
		{
			name: "command attributes",
			attributes: []attribute.KeyValue{
				attribute.String("room.id", "room_1"),
				attribute.String("command", "vote-poll"),
			},
		},
		{
			name: "mixed attributes",
			attributes: []attribute.KeyValue{
				attribute.String("string", "value"),
				attribute.Int("int", 42),
				attribute.Bool("bool", true),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()
			_, span := tp.Tracer("test").Start(context.Background(), tt.name)
			span.SetAttributes(tt.attributes...)
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.ElementsMatch(t, tt.attributes, spans[0].Attributes)
		})
	}
}
