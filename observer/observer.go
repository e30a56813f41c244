// Package observer provides OTEL-based observability for kage swarms.
//
// It wraps the provider, the tool registry, and the agent itself with
// instrumented versions that emit traces, metrics, and logs through
// OpenTelemetry. Any OTLP-compatible backend works; configuration comes
// from the standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/kage/observer"

// Instruments bundles the OTEL handles the wrappers record into. The
// exported fields let applications add their own instrumentation under
// the same scope.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger
	Cost   *CostCalculator

	tokens    metric.Int64Counter
	spendUSD  metric.Float64Counter
	llmCalls  metric.Int64Counter
	llmTime   metric.Float64Histogram
	toolRuns  metric.Int64Counter
	toolTime  metric.Float64Histogram
	agentRuns metric.Int64Counter
	agentTime metric.Float64Histogram
}

// Init wires OTLP HTTP exporters for traces, metrics, and logs,
// registers them as the global providers, and returns the instruments
// the wrappers record into. The returned shutdown function flushes all
// three pipelines and must be called on exit.
func Init(ctx context.Context, pricing map[string]ModelPricing) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("kage")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	var closers []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c(ctx))
		}
		return errors.Join(errs...)
	}
	// Unwind whatever was already registered when a later step fails.
	fail := func(err error) (*Instruments, func(context.Context) error, error) {
		_ = shutdown(ctx)
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return fail(err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	closers = append(closers, tp.Shutdown)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return fail(err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	closers = append(closers, mp.Shutdown)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		return fail(err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)
	closers = append(closers, lp.Shutdown)

	inst, err := newInstruments(pricing)
	if err != nil {
		return fail(err)
	}
	return inst, shutdown, nil
}

// newInstruments creates every counter and histogram under the package
// scope. Creation errors are joined so a broken meter surfaces once.
func newInstruments(pricing map[string]ModelPricing) (*Instruments, error) {
	meter := otel.Meter(scopeName)
	inst := &Instruments{
		Tracer: otel.Tracer(scopeName),
		Meter:  meter,
		Logger: global.GetLoggerProvider().Logger(scopeName),
		Cost:   NewCostCalculator(pricing),
	}

	var errs error
	count := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = errors.Join(errs, err)
		return c
	}
	timing := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
		errs = errors.Join(errs, err)
		return h
	}

	inst.tokens = count("llm.token.usage", "Total tokens consumed", "{token}")
	inst.llmCalls = count("llm.requests", "LLM request count", "{request}")
	inst.toolRuns = count("tool.executions", "Tool execution count", "{execution}")
	inst.agentRuns = count("agent.executions", "Agent run count", "{execution}")
	inst.llmTime = timing("llm.duration", "LLM call duration")
	inst.toolTime = timing("tool.duration", "Tool execution duration")
	inst.agentTime = timing("agent.duration", "Agent run duration")

	spend, err := meter.Float64Counter("llm.cost.total",
		metric.WithDescription("Cumulative LLM cost in USD"), metric.WithUnit("USD"))
	errs = errors.Join(errs, err)
	inst.spendUSD = spend

	if errs != nil {
		return nil, errs
	}
	return inst, nil
}

// emit sends one structured record through the OTEL log bridge.
func (i *Instruments) emit(ctx context.Context, body string, attrs ...otellog.KeyValue) {
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(body))
	rec.AddAttributes(attrs...)
	i.Logger.Emit(ctx, rec)
}
