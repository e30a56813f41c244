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

// ObservedProvider wraps a kage.Provider so every model call leaves a
// span, metric samples, and a log record.
type ObservedProvider struct {
	next  kage.Provider
	inst  *Instruments
	model string
}

// WrapProvider returns an instrumented provider. model names the model
// reported in telemetry and priced by the cost calculator.
func WrapProvider(next kage.Provider, model string, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{next: next, inst: inst, model: model}
}

func (o *ObservedProvider) Name() string { return o.next.Name() }

// Chat implements kage.Provider.
func (o *ObservedProvider) Chat(ctx context.Context, req kage.ChatRequest) (kage.ChatResponse, error) {
	method := "chat"
	attrs := []attribute.KeyValue{
		attribute.String("llm.model", o.model),
		attribute.String("llm.provider", o.next.Name()),
	}
	if len(req.Tools) > 0 {
		method = "chat_with_tools"
		names := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			names[i] = t.Name
		}
		attrs = append(attrs,
			attribute.Int("llm.tool_count", len(req.Tools)),
			attribute.StringSlice("llm.tool_names", names))
	}

	ctx, span := o.inst.Tracer.Start(ctx, "llm."+method, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	resp, err := o.next.Chat(ctx, req)
	o.finish(ctx, span, method, start, resp.Usage, err)
	return resp, err
}

// ChatStream implements kage.Provider. Events pass through a tap so the
// chunk count lands on the span. ch is never closed here; the caller
// owns its lifecycle.
func (o *ObservedProvider) ChatStream(ctx context.Context, req kage.ChatRequest, ch chan<- kage.StreamEvent) (kage.ChatResponse, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.chat_stream", trace.WithAttributes(
		attribute.String("llm.model", o.model),
		attribute.String("llm.provider", o.next.Name())))
	defer span.End()

	// The tap is buffered so the wrapped provider is not stalled by a
	// consumer that drains ch slowly.
	tap := make(chan kage.StreamEvent, max(cap(ch), 64))
	chunks := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range tap {
			chunks++
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	start := time.Now()
	resp, err := o.next.ChatStream(ctx, req, tap)
	// The wrapped provider leaves tap open; end the relay here.
	close(tap)
	<-done

	span.SetAttributes(attribute.Int("llm.stream_chunks", chunks))
	o.finish(ctx, span, "chat_stream", start, resp.Usage, err)
	return resp, err
}

// finish stamps the span, bumps the metrics, and emits one log record
// for a completed call.
func (o *ObservedProvider) finish(ctx context.Context, span trace.Span, method string, start time.Time, usage kage.Usage, err error) {
	elapsed := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	cost := o.inst.Cost.Calculate(o.model, usage.InputTokens, usage.OutputTokens)
	span.SetAttributes(
		attribute.Int("llm.tokens.input", usage.InputTokens),
		attribute.Int("llm.tokens.output", usage.OutputTokens),
		attribute.Float64("llm.cost_usd", cost),
	)

	model := attribute.String("llm.model", o.model)
	prov := attribute.String("llm.provider", o.next.Name())
	meth := attribute.String("llm.method", method)

	o.inst.tokens.Add(ctx, int64(usage.InputTokens),
		metric.WithAttributes(model, prov, attribute.String("direction", "input")))
	o.inst.tokens.Add(ctx, int64(usage.OutputTokens),
		metric.WithAttributes(model, prov, attribute.String("direction", "output")))
	o.inst.spendUSD.Add(ctx, cost, metric.WithAttributes(model, prov, meth))
	o.inst.llmCalls.Add(ctx, 1,
		metric.WithAttributes(model, prov, meth, attribute.String("status", status)))
	o.inst.llmTime.Record(ctx, elapsed, metric.WithAttributes(model, prov, meth))

	o.inst.emit(ctx, "llm call completed",
		otellog.String("llm.model", o.model),
		otellog.String("llm.provider", o.next.Name()),
		otellog.String("llm.method", method),
		otellog.Int("llm.tokens.input", usage.InputTokens),
		otellog.Int("llm.tokens.output", usage.OutputTokens),
		otellog.Float64("llm.cost_usd", cost),
		otellog.Float64("llm.duration_ms", elapsed),
		otellog.String("status", status))
}

var _ kage.Provider = (*ObservedProvider)(nil)
