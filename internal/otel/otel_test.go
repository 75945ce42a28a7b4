package otel

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hanpama/pathway/internal/adaptive"
	"github.com/hanpama/pathway/internal/engine"
	"github.com/hanpama/pathway/internal/pathtest"
)

func attrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestTieringSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	e := engine.New(engine.WithTiering(adaptive.WithThreshold(2)))
	detach := Attach(e.Bus(), tp.Tracer(tracerName))

	u := pathtest.Sample()
	for range 3 {
		_, err := e.Get("address.city", u, nil)
		require.NoError(t, err)
	}
	e.Reset()

	spans := rec.Ended()
	require.Len(t, spans, 3)

	require.Equal(t, "tiering.specialize", spans[0].Name())
	a := attrs(spans[0])
	require.Equal(t, "address.city", a["pathway.site.path"].AsString())
	require.False(t, a["pathway.declined"].AsBool())
	require.Equal(t, int64(2), a["pathway.invocations"].AsInt64())

	require.Equal(t, "tiering.deoptimize", spans[1].Name())
	a = attrs(spans[1])
	require.Equal(t, "reset", a["pathway.reason"].AsString())
	require.Equal(t, attrs(spans[0])["pathway.site.id"], a["pathway.site.id"])

	require.Equal(t, "tiering.reset", spans[2].Name())
	require.Equal(t, int64(1), attrs(spans[2])["pathway.units"].AsInt64())

	detach()
	e.Reset()
	require.Len(t, rec.Ended(), 3)
}

func TestDeclinedSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	e := engine.New(engine.WithTiering(adaptive.WithThreshold(1)))
	e.RegisterHandler(reflect.TypeOf(&pathtest.Bag{}), pathtest.OpaqueHandler{})
	Attach(e.Bus(), tp.Tracer(tracerName))

	bag := &pathtest.Bag{Values: map[string]any{"color": "red"}}
	acc, err := e.Compile("color", bag)
	require.NoError(t, err)
	for range 2 {
		_, err := acc.Get(bag, bag, nil)
		require.NoError(t, err)
	}

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.True(t, attrs(spans[0])["pathway.declined"].AsBool())
	require.Len(t, spans[0].Events(), 1)
	require.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup("", "pathway", nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
