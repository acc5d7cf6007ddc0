package markdown

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type cacheMetrics struct {
	hits          metric.Int64Counter
	misses        metric.Int64Counter
	writes        metric.Int64Counter
	invalidations metric.Int64Counter
	failures      metric.Int64Counter
	renderMs      metric.Float64Histogram
}

func newCacheMetrics(meter metric.Meter) (*cacheMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}

	hits, err := meter.Int64Counter("mdhub.cache.hits",
		metric.WithDescription("Markdown cache hits by tier"),
		metric.WithUnit("{hit}"))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter("mdhub.cache.misses",
		metric.WithDescription("Markdown cache misses"),
		metric.WithUnit("{miss}"))
	if err != nil {
		return nil, err
	}
	writes, err := meter.Int64Counter("mdhub.cache.writes",
		metric.WithDescription("Markdown cache writes"),
		metric.WithUnit("{write}"))
	if err != nil {
		return nil, err
	}
	invalidations, err := meter.Int64Counter("mdhub.cache.invalidations",
		metric.WithDescription("Document cache invalidations"),
		metric.WithUnit("{invalidation}"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("mdhub.render.failures",
		metric.WithDescription("Failed or timed out renders"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, err
	}
	renderMs, err := meter.Float64Histogram("mdhub.render.duration_ms",
		metric.WithDescription("Render duration in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &cacheMetrics{
		hits:          hits,
		misses:        misses,
		writes:        writes,
		invalidations: invalidations,
		failures:      failures,
		renderMs:      renderMs,
	}, nil
}

func (m *cacheMetrics) hit(ctx context.Context, tier string) {
	m.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

func (m *cacheMetrics) rendered(ctx context.Context, trigger string, d time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("trigger", trigger))
	m.renderMs.Record(ctx, float64(d.Milliseconds()), opt)
	if err != nil {
		m.failures.Add(ctx, 1, opt)
	}
}
