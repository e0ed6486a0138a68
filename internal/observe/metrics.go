// Package observe provides the OpenTelemetry metric instruments for the
// narration pipeline and an optional Prometheus scrape endpoint.
//
// Tests should build instruments with NewMetrics over their own
// MeterProvider. DefaultMetrics binds to the global provider, which is a
// no-op until InitProvider runs.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all bookvoice metrics.
const meterName = "github.com/dgnsrekt/bookvoice"

// Metrics holds every instrument used by the pipeline.
type Metrics struct {
	// SynthesisDuration tracks speech synthesis latency per segment.
	SynthesisDuration metric.Float64Histogram

	// SynthesisRequests counts synthesis calls. Use with attributes:
	//   attribute.String("engine", ...), attribute.String("status", ...)
	SynthesisRequests metric.Int64Counter

	// SegmentsScheduled counts buffers handed to the output context.
	SegmentsScheduled metric.Int64Counter

	// SegmentsSkipped counts segments dropped for missing or malformed audio.
	SegmentsSkipped metric.Int64Counter

	// RequestsSuperseded counts results discarded because a newer
	// narration started.
	RequestsSuperseded metric.Int64Counter

	// CacheHits counts synthesis results served from cache.
	CacheHits metric.Int64Counter

	// ActiveSources tracks scheduled buffers not yet finished.
	ActiveSources metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds sized for API round trips.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("bookvoice.synthesis.duration",
		metric.WithDescription("Latency of one speech synthesis call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SynthesisRequests, err = m.Int64Counter("bookvoice.synthesis.requests",
		metric.WithDescription("Total synthesis calls by engine and status."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsScheduled, err = m.Int64Counter("bookvoice.segments.scheduled",
		metric.WithDescription("Total audio segments scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsSkipped, err = m.Int64Counter("bookvoice.segments.skipped",
		metric.WithDescription("Total segments skipped for missing or malformed audio."),
	); err != nil {
		return nil, err
	}
	if met.RequestsSuperseded, err = m.Int64Counter("bookvoice.requests.superseded",
		metric.WithDescription("Total results discarded because a newer narration started."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("bookvoice.cache.hits",
		metric.WithDescription("Total synthesis results served from cache."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSources, err = m.Int64UpDownCounter("bookvoice.sources.active",
		metric.WithDescription("Number of scheduled audio sources not yet finished."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance bound to the global
// MeterProvider. It panics if instrument creation fails.
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

// RecordSynthesis records one synthesis call with its latency in seconds.
func (m *Metrics) RecordSynthesis(ctx context.Context, engine, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("status", status),
	)
	m.SynthesisRequests.Add(ctx, 1, attrs)
	m.SynthesisDuration.Record(ctx, seconds, attrs)
}
