// Package observe provides the OpenTelemetry metrics of the autopublisher.
//
// Instruments are created through the OTel metrics API. [InitProvider] wires
// an SDK meter provider with a Prometheus exporter so the server can expose
// /metrics. Tests should use [NewMetrics] with their own provider.
//
// All Record methods are safe to call on a nil *Metrics; they do nothing.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "loom_autopublisher"

// Metrics holds the metric instruments for synthesis, sinks and runs.
type Metrics struct {
	// SinkCalls counts sink invocations with attributes sink, mode, status.
	SinkCalls metric.Int64Counter

	// FallbackIDs counts results whose identifier was generated locally
	// because the remote success response omitted one.
	FallbackIDs metric.Int64Counter

	// SynthesisDuration tracks model round-trip plus validation latency.
	SynthesisDuration metric.Float64Histogram

	// SynthesisRecoveries counts model outputs repaired by brace extraction.
	SynthesisRecoveries metric.Int64Counter

	// Runs counts finished pipeline runs with attribute status.
	Runs metric.Int64Counter
}

var latencyBuckets = []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SinkCalls, err = m.Int64Counter("loomap.sink.calls",
		metric.WithDescription("Distribution sink invocations."),
	); err != nil {
		return nil, err
	}
	if met.FallbackIDs, err = m.Int64Counter("loomap.sink.fallback_ids",
		metric.WithDescription("Sink results carrying a locally generated identifier."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("loomap.synthesis.duration",
		metric.WithDescription("Latency of content synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisRecoveries, err = m.Int64Counter("loomap.synthesis.recoveries",
		metric.WithDescription("Model outputs recovered by brace extraction."),
	); err != nil {
		return nil, err
	}
	if met.Runs, err = m.Int64Counter("loomap.runs",
		metric.WithDescription("Finished pipeline runs."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level instance built from the global
// meter provider on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSinkCall counts one sink invocation.
func (m *Metrics) RecordSinkCall(ctx context.Context, sink, mode, status string) {
	if m == nil {
		return
	}
	m.SinkCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sink", sink),
		attribute.String("mode", mode),
		attribute.String("status", status),
	))
}

// RecordFallbackID counts a locally generated identifier for sink.
func (m *Metrics) RecordFallbackID(ctx context.Context, sink string) {
	if m == nil {
		return
	}
	m.FallbackIDs.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}

// RecordSynthesis observes one synthesis call.
func (m *Metrics) RecordSynthesis(ctx context.Context, d time.Duration, status string) {
	if m == nil {
		return
	}
	m.SynthesisDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// RecordRecovery counts one brace-extraction recovery.
func (m *Metrics) RecordRecovery(ctx context.Context) {
	if m == nil {
		return
	}
	m.SynthesisRecoveries.Add(ctx, 1)
}

// RecordRun counts one finished pipeline run.
func (m *Metrics) RecordRun(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.Runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
