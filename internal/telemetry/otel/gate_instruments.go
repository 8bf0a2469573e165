package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// GateInstruments publishes metrics and traces for the enforcement
// gate's decisions.
type GateInstruments struct {
	meterEnabled bool
	traceEnabled bool

	counterDecisions      metric.Int64Counter
	counterResolverErrors metric.Int64Counter
	histResolveLatency    metric.Int64Histogram

	tracer trace.Tracer
}

// DecisionSpan wraps a single Observe/Enforce call's span and timing.
type DecisionSpan struct {
	ctx   context.Context
	span  trace.Span
	start time.Time
}

func newGateInstruments(p *Provider) *GateInstruments {
	if p == nil {
		return nil
	}
	inst := &GateInstruments{
		meterEnabled: p.meterProvider != nil,
		traceEnabled: p.tracerProvider != nil,
	}
	if p.meterProvider != nil {
		inst.counterDecisions, _ = p.meter.Int64Counter(
			"gate.decisions_total",
			metric.WithDescription("Number of enforcement decisions, by decision and mode"),
		)
		inst.counterResolverErrors, _ = p.meter.Int64Counter(
			"gate.resolver_errors_total",
			metric.WithDescription("Number of path-resolution failures, by failure kind"),
		)
		inst.histResolveLatency, _ = p.meter.Int64Histogram(
			"gate.resolve.duration_us",
			metric.WithDescription("Path resolution latency in microseconds"),
		)
	}
	if p.tracerProvider != nil {
		inst.tracer = p.tracer
	}
	return inst
}

// StartDecision begins a span around one Observe/Enforce invocation.
func (i *GateInstruments) StartDecision(parent context.Context, op string) (*DecisionSpan, context.Context) {
	if i == nil {
		return nil, parent
	}
	d := &DecisionSpan{ctx: parent, start: time.Now()}
	if i.traceEnabled && i.tracer != nil {
		ctx, span := i.tracer.Start(parent, "gate."+op)
		d.ctx = ctx
		d.span = span
	}
	return d, d.ctx
}

// RecordDecision finishes d, recording the decision outcome and
// resolution latency.
func (i *GateInstruments) RecordDecision(d *DecisionSpan, decision, mode string) {
	if i == nil || d == nil {
		return
	}
	elapsed := time.Since(d.start)
	attrs := []attribute.KeyValue{
		attribute.String("decision", decision),
		attribute.String("mode", mode),
	}
	if i.meterEnabled {
		i.counterDecisions.Add(d.ctx, 1, metric.WithAttributes(attrs...))
		i.histResolveLatency.Record(d.ctx, elapsed.Microseconds(), metric.WithAttributes(attrs...))
	}
	if d.span != nil {
		d.span.SetAttributes(attrs...)
		d.span.End()
	}
}

// RecordResolverError increments the resolver-failure counter for the
// named failure kind (spec §7's taxonomy), e.g. "unresolved", "capacity_exceeded".
func (i *GateInstruments) RecordResolverError(ctx context.Context, kind string) {
	if i == nil || !i.meterEnabled {
		return
	}
	i.counterResolverErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
