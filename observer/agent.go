package observer

import (
	"context"
	"time"

	"github.com/nevindra/kage"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Runner is the agent surface the observer wraps. *kage.Agent satisfies it.
type Runner interface {
	Name() string
	Run(ctx context.Context, task string) (string, error)
	RunStream(ctx context.Context, task string, ch chan<- kage.StreamEvent) (string, error)
}

// ObservedAgent wraps a Runner with a per-run agent.execute span. The span
// propagates through ctx, so LLM calls, tool executions, and clone runs made
// during the run become its children.
type ObservedAgent struct {
	next Runner
	inst *Instruments
}

// WrapAgent returns an instrumented agent.
func WrapAgent(next Runner, inst *Instruments) *ObservedAgent {
	return &ObservedAgent{next: next, inst: inst}
}

func (o *ObservedAgent) Name() string { return o.next.Name() }

func (o *ObservedAgent) Run(ctx context.Context, task string) (string, error) {
	return o.observe(ctx, task, func(ctx context.Context) (string, error) {
		return o.next.Run(ctx, task)
	})
}

// RunStream passes ch through untouched; the inner agent keeps its channel
// semantics.
func (o *ObservedAgent) RunStream(ctx context.Context, task string, ch chan<- kage.StreamEvent) (string, error) {
	return o.observe(ctx, task, func(ctx context.Context) (string, error) {
		return o.next.RunStream(ctx, task, ch)
	})
}

func (o *ObservedAgent) observe(ctx context.Context, task string, run func(context.Context) (string, error)) (string, error) {
	name := o.next.Name()
	ctx, span := o.inst.Tracer.Start(ctx, "agent.execute",
		trace.WithAttributes(attribute.String("agent.name", name)))
	defer span.End()

	span.AddEvent("agent.started", trace.WithAttributes(
		attribute.Int("task.length", len(task))))

	start := time.Now()
	answer, err := run(ctx)
	elapsed := float64(time.Since(start).Milliseconds())

	status := conclude(ctx, span, err)
	span.SetAttributes(attribute.String("agent.status", status))

	o.inst.agentRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent.name", name),
		attribute.String("status", status)))
	o.inst.agentTime.Record(ctx, elapsed, metric.WithAttributes(
		attribute.String("agent.name", name)))

	o.inst.emit(ctx, "agent run completed",
		otellog.String("agent.name", name),
		otellog.String("agent.status", status),
		otellog.Int("answer.length", len(answer)),
		otellog.Float64("duration_ms", elapsed))

	return answer, err
}

// conclude records the run outcome on the span and names it. A run that
// failed while its context was already dead counts as cancelled, not as an
// agent error.
func conclude(ctx context.Context, span trace.Span, err error) string {
	switch {
	case err != nil && ctx.Err() != nil:
		span.AddEvent("agent.cancelled")
		span.SetStatus(codes.Error, "cancelled")
		return "cancelled"
	case err != nil:
		span.AddEvent("agent.failed", trace.WithAttributes(
			attribute.String("error", err.Error())))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "error"
	default:
		span.AddEvent("agent.completed")
		return "ok"
	}
}

var _ Runner = (*ObservedAgent)(nil)
