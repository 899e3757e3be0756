package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
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

func sumInt64(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, not Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecordCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAttempt(ctx, "clip", false)
	m.RecordAttempt(ctx, "synthesis", true)
	m.RecordCacheLookup(ctx, true)
	m.RecordPrefetch(ctx, false)
	m.RecordTone(ctx, "button")
	m.AddQueueDepth(ctx, 2)
	m.AddQueueDepth(ctx, -1)

	rm := collect(t, reader)

	tests := []struct {
		name string
		want int64
	}{
		{"cuecast.tier.attempts", 2},
		{"cuecast.cache.lookups", 1},
		{"cuecast.prefetch.loads", 1},
		{"cuecast.tones", 1},
		{"cuecast.queue.depth", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findMetric(rm, tt.name)
			if got == nil {
				t.Fatalf("metric %s not found", tt.name)
			}
			if v := sumInt64(t, got); v != tt.want {
				t.Errorf("expected %d, got %d", tt.want, v)
			}
		})
	}
}

func TestRecordResolution(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordResolution(context.Background(), "character", true, 300*time.Millisecond)

	rm := collect(t, reader)
	got := findMetric(rm, "cuecast.resolve.duration")
	if got == nil {
		t.Fatal("histogram not found")
	}
	hist, ok := got.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("unexpected histogram data %+v", got.Data)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordAttempt(ctx, "clip", true)
	m.RecordResolution(ctx, "tone", true, time.Second)
	m.RecordCacheLookup(ctx, false)
	m.RecordPrefetch(ctx, true)
	m.AddQueueDepth(ctx, 1)
	m.RecordTone(ctx, "wrong")
}

func TestProviderHandler(t *testing.T) {
	p, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	p.Metrics.RecordTone(context.Background(), "correct")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "cuecast_tones") {
		t.Errorf("expected cuecast_tones in exposition, got:\n%s", body)
	}
}
