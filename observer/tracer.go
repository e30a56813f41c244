package observer

import (
	"context"
	"fmt"

	"github.com/nevindra/kage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// otelTracer adapts the global OTEL tracer to the kage.Tracer seam, so
// the root package can create spans without importing OTEL.
type otelTracer struct {
	t trace.Tracer
}

// NewTracer returns a kage.Tracer backed by the global OTEL
// TracerProvider. Call Init first; without it spans go to a no-op
// backend.
func NewTracer() kage.Tracer {
	return &otelTracer{t: otel.Tracer(scopeName)}
}

func (t *otelTracer) Start(ctx context.Context, name string, attrs ...kage.SpanAttr) (context.Context, kage.Span) {
	ctx, span := t.t.Start(ctx, name, trace.WithAttributes(convert(attrs)...))
	return ctx, &otelSpan{s: span}
}

// otelSpan adapts one OTEL span to kage.Span.
type otelSpan struct {
	s trace.Span
}

func (s *otelSpan) SetAttr(attrs ...kage.SpanAttr) {
	s.s.SetAttributes(convert(attrs)...)
}

func (s *otelSpan) Error(err error) {
	s.s.RecordError(err)
	s.s.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() { s.s.End() }

// convert maps kage span attributes onto typed OTEL attributes. The
// root package only produces string and int values; anything else is
// stringified.
func convert(attrs []kage.SpanAttr) []attribute.KeyValue {
	out := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			out[i] = attribute.String(a.Key, v)
		case int:
			out[i] = attribute.Int(a.Key, v)
		default:
			out[i] = attribute.String(a.Key, fmt.Sprint(v))
		}
	}
	return out
}

var (
	_ kage.Tracer = (*otelTracer)(nil)
	_ kage.Span   = (*otelSpan)(nil)
)
