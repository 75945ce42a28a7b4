// Package otel turns tiering events into OpenTelemetry spans.
package otel

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanpama/pathway/internal/eventbus"
	"github.com/hanpama/pathway/internal/events"
	"github.com/hanpama/pathway/internal/siteid"
)

const tracerName = "github.com/hanpama/pathway"

// Setup configures an OTLP gRPC exporter and attaches tiering subscribers to
// bus. If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string, bus *eventbus.Bus) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	detach := Attach(bus, tp.Tracer(tracerName))
	return func(ctx context.Context) error {
		detach()
		return tp.Shutdown(ctx)
	}, nil
}

// Attach subscribes span-producing handlers to bus and returns a function
// removing them.
func Attach(bus *eventbus.Bus, tracer trace.Tracer) (detach func()) {
	s := &subscriber{tracer: tracer}
	return s.register(bus)
}

type subscriber struct {
	tracer trace.Tracer
	spans  sync.Map // uuid.UUID -> trace.Span
}

func siteAttrs(site siteid.Site) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("pathway.site.id", site.ID.String()),
		attribute.String("pathway.site.path", site.Path),
		attribute.Int("pathway.site.start", site.Start),
	}
}

func siteKey(ctx context.Context, site siteid.Site) uuid.UUID {
	if s, ok := siteid.FromContext(ctx); ok {
		return s.ID
	}
	return site.ID
}

func (s *subscriber) register(bus *eventbus.Bus) func() {
	unsubs := []func(){
		eventbus.Subscribe(bus, func(ctx context.Context, e events.SpecializeStart) {
			_, span := s.tracer.Start(ctx, "tiering.specialize")
			span.SetAttributes(siteAttrs(e.Site)...)
			span.SetAttributes(attribute.Int64("pathway.invocations", e.Invocations))
			s.spans.Store(siteKey(ctx, e.Site), span)
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.SpecializeFinish) {
			v, ok := s.spans.LoadAndDelete(siteKey(ctx, e.Site))
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(attribute.Bool("pathway.declined", e.Declined))
			if e.Err != nil {
				span.RecordError(e.Err)
				if !e.Declined {
					span.SetStatus(codes.Error, e.Err.Error())
				}
			}
			span.End()
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.Deoptimized) {
			_, span := s.tracer.Start(ctx, "tiering.deoptimize")
			span.SetAttributes(siteAttrs(e.Site)...)
			span.SetAttributes(attribute.String("pathway.reason", e.Reason))
			span.End()
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.RegistryReset) {
			_, span := s.tracer.Start(ctx, "tiering.reset")
			span.SetAttributes(
				attribute.Int("pathway.units", e.Units),
				attribute.String("pathway.reason", e.Reason),
			)
			span.End()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
