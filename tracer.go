package kage

import "context"

// Tracer hands out spans for the operations worth seeing on a timeline:
// whole runs, single turns, delegation fan-outs. The observer package
// provides an OTEL-backed implementation; a nil Tracer means tracing is
// off and callers skip span creation entirely.
type Tracer interface {
	// Start opens a span and returns a child context carrying it. The
	// returned Span must be ended exactly once.
	Start(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span)
}

// Span is one live traced operation.
type Span interface {
	// SetAttr attaches attributes after the span has started, for values
	// only known mid-flight (current URL, token counts).
	SetAttr(attrs ...SpanAttr)

	// Error marks the span failed and records err on it.
	Error(err error)

	// End closes the span. Call it exactly once.
	End()
}

// SpanAttr is one key-value pair on a span.
type SpanAttr struct {
	Key   string
	Value any
}

// StringAttr builds a string-valued span attribute.
func StringAttr(k, v string) SpanAttr { return SpanAttr{Key: k, Value: v} }

// IntAttr builds an int-valued span attribute.
func IntAttr(k string, v int) SpanAttr { return SpanAttr{Key: k, Value: v} }
