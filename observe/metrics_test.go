package observe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumFor(t *testing.T, m *metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is %T, want Sum[int64]", m.Name, m.Data)
	want := attribute.NewSet(attrs...)
	var total int64
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			total += dp.Value
		}
	}
	return total
}

func TestRecordSinkCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSinkCall(ctx, "youtube", "simulated", "ok")
	m.RecordSinkCall(ctx, "youtube", "simulated", "ok")
	m.RecordSinkCall(ctx, "buffer", "live", "error")

	rm := collect(t, reader)
	calls := findMetric(rm, "loomap.sink.calls")
	assert.Equal(t, int64(2), sumFor(t, calls,
		attribute.String("sink", "youtube"),
		attribute.String("mode", "simulated"),
		attribute.String("status", "ok"),
	))
	assert.Equal(t, int64(1), sumFor(t, calls,
		attribute.String("sink", "buffer"),
		attribute.String("mode", "live"),
		attribute.String("status", "error"),
	))
}

func TestRecordFallbackAndRuns(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFallbackID(ctx, "buffer")
	m.RecordRun(ctx, "ok")
	m.RecordRun(ctx, "failed")
	m.RecordRecovery(ctx)

	rm := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "loomap.sink.fallback_ids"), attribute.String("sink", "buffer")))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "loomap.runs"), attribute.String("status", "failed")))
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "loomap.synthesis.recoveries")))
}

func TestRecordSynthesisHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordSynthesis(context.Background(), 1500*time.Millisecond, "ok")

	rm := collect(t, reader)
	got := findMetric(rm, "loomap.synthesis.duration")
	require.NotNil(t, got)
	hist, ok := got.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 1e-9)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordSinkCall(ctx, "site", "live", "ok")
		m.RecordFallbackID(ctx, "buffer")
		m.RecordSynthesis(ctx, time.Second, "ok")
		m.RecordRecovery(ctx)
		m.RecordRun(ctx, "ok")
	})
}
