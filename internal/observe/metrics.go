// Package observe carries textnorm's telemetry: OpenTelemetry instruments,
// span helpers, a trace-aware logger and the HTTP middleware that ties them
// together.
//
// [Setup] builds the SDK providers; their metrics are scraped from
// [Telemetry.Handler]. Components take a [*Metrics] explicitly and fall back
// to [DefaultMetrics], which reports through the global provider. Tests build
// their own with [NewMetrics] over a ManualReader.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every textnorm instrument.
const meterName = "github.com/MrWong99/textnorm"

// Metrics holds the instruments. Safe for concurrent use.
type Metrics struct {
	// GrammarBuildDuration is the time to build and optimize one grammar,
	// by "grammar".
	GrammarBuildDuration metric.Float64Histogram

	// NormalizeDuration is the latency of one call, by "op" (normalize or
	// classify).
	NormalizeDuration metric.Float64Histogram

	// HTTPRequestDuration is the request latency, by "method", "route" and
	// "status".
	HTTPRequestDuration metric.Float64Histogram

	// GrammarBuilds counts builds by "grammar" and "status".
	GrammarBuilds metric.Int64Counter

	// Transductions counts spans a grammar accepted, by "grammar".
	Transductions metric.Int64Counter

	// TransductionFailures counts spans a grammar rejected before the chain
	// moved on, by "grammar".
	TransductionFailures metric.Int64Counter

	// GrammarStates is the state count of the last successful build, by
	// "grammar".
	GrammarStates metric.Int64Gauge
}

// latencyBuckets spans sub-millisecond transductions up to multi-second
// builds of large lexicons.
var latencyBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10,
}

// NewMetrics creates every instrument on mp. All creation errors are
// reported together.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	seconds := func(name, desc string, buckets ...float64) (metric.Float64Histogram, error) {
		opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
		if len(buckets) > 0 {
			opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
		}
		return m.Float64Histogram(name, opts...)
	}
	counter := func(name, desc string) (metric.Int64Counter, error) {
		return m.Int64Counter(name, metric.WithDescription(desc))
	}

	var (
		met  Metrics
		errs = make([]error, 7)
	)
	met.GrammarBuildDuration, errs[0] = seconds("textnorm.grammar.build.duration",
		"Latency of building and optimizing a grammar.", latencyBuckets...)
	met.NormalizeDuration, errs[1] = seconds("textnorm.normalize.duration",
		"Latency of a normalize or classify call.", latencyBuckets...)
	met.HTTPRequestDuration, errs[2] = seconds("textnorm.http.request.duration",
		"HTTP request latency by method, route and status.")
	met.GrammarBuilds, errs[3] = counter("textnorm.grammar.builds",
		"Grammar builds by grammar and status.")
	met.Transductions, errs[4] = counter("textnorm.transductions",
		"Spans accepted by a grammar.")
	met.TransductionFailures, errs[5] = counter("textnorm.transduction.failures",
		"Spans a grammar did not accept.")
	met.GrammarStates, errs[6] = m.Int64Gauge("textnorm.grammar.states",
		metric.WithDescription("States in the last built fragment of a grammar."))

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a shared [Metrics] on [otel.GetMeterProvider],
// created on first use. The global provider is a delegate, so instruments
// created before [Telemetry.Install] still report once it runs.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic("observe: default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func byGrammar(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("grammar", name))
}

// RecordGrammarBuild records a build's duration and outcome and, when it
// succeeded, the fragment's state count.
func (m *Metrics) RecordGrammarBuild(ctx context.Context, grammar string, seconds float64, states int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.GrammarBuildDuration.Record(ctx, seconds, byGrammar(grammar))
	m.GrammarBuilds.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grammar", grammar),
		attribute.String("status", status),
	))
	if err == nil {
		m.GrammarStates.Record(ctx, int64(states), byGrammar(grammar))
	}
}

// RecordTransduction counts a span accepted by grammar.
func (m *Metrics) RecordTransduction(ctx context.Context, grammar string) {
	m.Transductions.Add(ctx, 1, byGrammar(grammar))
}

// RecordTransductionFailure counts a span rejected by grammar.
func (m *Metrics) RecordTransductionFailure(ctx context.Context, grammar string) {
	m.TransductionFailures.Add(ctx, 1, byGrammar(grammar))
}

// RecordNormalize records one call of op.
func (m *Metrics) RecordNormalize(ctx context.Context, op string, seconds float64) {
	m.NormalizeDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("op", op)))
}
