// Package observe provides the OpenTelemetry metrics recorded by the
// playback orchestrator. A Prometheus exporter bridge is installed by
// [InitProvider] so the instruments can be scraped from /metrics.
//
// All Record methods are safe on a nil *Metrics, which records nothing.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all cuecast metrics.
const meterName = "github.com/dgnsrekt/cuecast"

// Outcome values used as the "outcome" attribute.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics holds the metric instruments for the orchestrator.
type Metrics struct {
	// TierAttempts counts fallback tier attempts. Attributes:
	//   attribute.String("tier", ...), attribute.String("outcome", ...)
	TierAttempts metric.Int64Counter

	// Resolutions counts finished requests. Attributes:
	//   attribute.String("kind", ...), attribute.String("outcome", ...)
	Resolutions metric.Int64Counter

	// ResolveDuration tracks time from promotion to terminal signal.
	ResolveDuration metric.Float64Histogram

	// CacheLookups counts prefetch cache lookups. Attribute:
	//   attribute.Bool("hit", ...)
	CacheLookups metric.Int64Counter

	// PrefetchLoads counts prefetch loads by outcome.
	PrefetchLoads metric.Int64Counter

	// QueueDepth tracks the number of pending playback tasks.
	QueueDepth metric.Int64UpDownCounter

	// Tones counts fire-and-forget tones. Attribute:
	//   attribute.String("tone", ...)
	Tones metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds for cue resolution.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 1.5, 2.5, 5, 10,
}

// NewMetrics creates the instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TierAttempts, err = m.Int64Counter("cuecast.tier.attempts",
		metric.WithDescription("Fallback tier attempts by tier and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Resolutions, err = m.Int64Counter("cuecast.resolutions",
		metric.WithDescription("Resolved playback requests by kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ResolveDuration, err = m.Float64Histogram("cuecast.resolve.duration",
		metric.WithDescription("Time spent resolving one playback request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("cuecast.cache.lookups",
		metric.WithDescription("Prefetch cache lookups by hit or miss."),
	); err != nil {
		return nil, err
	}
	if met.PrefetchLoads, err = m.Int64Counter("cuecast.prefetch.loads",
		metric.WithDescription("Prefetch loads by outcome."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("cuecast.queue.depth",
		metric.WithDescription("Pending playback tasks."),
	); err != nil {
		return nil, err
	}
	if met.Tones, err = m.Int64Counter("cuecast.tones",
		metric.WithDescription("UI tones played by kind."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Discard returns metrics backed by a no-op provider.
func Discard() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

func outcome(ok bool) string {
	if ok {
		return OutcomeOK
	}
	return OutcomeFailed
}

// RecordAttempt records one fallback tier attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, tier string, ok bool) {
	if m == nil {
		return
	}
	m.TierAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("outcome", outcome(ok)),
	))
}

// RecordResolution records a finished request and its duration.
func (m *Metrics) RecordResolution(ctx context.Context, kind string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome(ok)),
	)
	m.Resolutions.Add(ctx, 1, attrs)
	m.ResolveDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordCacheLookup records a prefetch cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

// RecordPrefetch records the outcome of one prefetch load.
func (m *Metrics) RecordPrefetch(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.PrefetchLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(ok))))
}

// AddQueueDepth moves the queue depth gauge by delta.
func (m *Metrics) AddQueueDepth(ctx context.Context, delta int64) {
	if m == nil || delta == 0 {
		return
	}
	m.QueueDepth.Add(ctx, delta)
}

// RecordTone records a played UI tone.
func (m *Metrics) RecordTone(ctx context.Context, tone string) {
	if m == nil {
		return
	}
	m.Tones.Add(ctx, 1, metric.WithAttributes(attribute.String("tone", tone)))
}
