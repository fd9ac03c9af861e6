package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"mcf/value"
)

// OTelGenerator adapts Generator to an OpenTelemetry tracer, emitting one
// span event per notification rather than a full span per event — mcf's
// scheduling hot path is too high-frequency for span-per-event to be
// affordable. Install a real TracerProvider on the supplied tracer to
// route these events to a collector; the zero value of
// oteltrace.NewNoopTracerProvider().Tracer("") is safe and does nothing.
type OTelGenerator struct {
	tracer oteltrace.Tracer
	ctx    context.Context
	span   oteltrace.Span
}

// NewOTelGenerator starts one long-lived span named "mcf" under ctx using
// tracer, and returns a Generator that records every notification as an
// event on that span.
func NewOTelGenerator(ctx context.Context, tracer oteltrace.Tracer) *OTelGenerator {
	spanCtx, span := tracer.Start(ctx, "mcf")
	return &OTelGenerator{tracer: tracer, ctx: spanCtx, span: span}
}

// Close ends the underlying span. Call it when the owning manager shuts
// down.
func (g *OTelGenerator) Close() {
	g.span.End()
}

func (g *OTelGenerator) ComponentRegistered(instanceName, typeName string) {
	g.span.AddEvent("component.registered", oteltrace.WithAttributes(
		attribute.String("mcf.instance", instanceName),
		attribute.String("mcf.type", typeName),
	))
}

func (g *OTelGenerator) SetQueuedEventValue(topic string, v value.Value, producerComponent, producerPort string) {
	attrs := []attribute.KeyValue{
		attribute.String("mcf.topic", topic),
		attribute.String("mcf.producer_component", producerComponent),
		attribute.String("mcf.producer_port", producerPort),
	}
	if v != nil {
		attrs = append(attrs, attribute.Int64("mcf.value_id", int64(v.ID())))
	}
	g.span.AddEvent("queued_event.set", oteltrace.WithAttributes(attrs...))
}
