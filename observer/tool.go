package observer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nevindra/kage"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedTool wraps a kage.Tool so every execution leaves a span, a
// metric sample, and a log record.
type ObservedTool struct {
	next kage.Tool
	inst *Instruments
}

// WrapTool returns an instrumented tool.
func WrapTool(next kage.Tool, inst *Instruments) *ObservedTool {
	return &ObservedTool{next: next, inst: inst}
}

func (o *ObservedTool) Definitions() []kage.ToolDefinition {
	return o.next.Definitions()
}

// Execute implements kage.Tool.
func (o *ObservedTool) Execute(ctx context.Context, name string, args json.RawMessage) (kage.ToolResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	start := time.Now()
	result, err := o.next.Execute(ctx, name, args)
	elapsed := float64(time.Since(start).Milliseconds())

	// A tool-reported failure and a Go error are distinct outcomes: the
	// model can work around the former, the loop handles the latter.
	status := "ok"
	switch {
	case err != nil:
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case result.Error != "":
		status = "tool_error"
	}

	span.SetAttributes(
		attribute.String("tool.status", status),
		attribute.Int("tool.result_length", len(result.Content)),
	)
	o.inst.toolRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("status", status)))
	o.inst.toolTime.Record(ctx, elapsed, metric.WithAttributes(
		attribute.String("tool.name", name)))

	o.inst.emit(ctx, "tool executed",
		otellog.String("tool.name", name),
		otellog.String("tool.status", status),
		otellog.Int("tool.result_length", len(result.Content)),
		otellog.Float64("tool.duration_ms", elapsed))

	return result, err
}

var _ kage.Tool = (*ObservedTool)(nil)
