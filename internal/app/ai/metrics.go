package ai

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type gatewayMetrics struct {
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	fallbacks      metric.Int64Counter
	engineCalls    metric.Int64Counter
	engineDuration metric.Float64Histogram
}

const namespace = "ai_gateway"

// NewGatewayMetrics creates GatewayMetrics backed by mp.
func NewGatewayMetrics(mp metric.MeterProvider) (*gatewayMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(gatewayMetrics)
	var err error

	if m.cacheHits, err = meter.Int64Counter(
		"cache_hits_total",
		metric.WithDescription("Total number of enrichments served from cache"),
	); err != nil {
		return nil, err
	}

	if m.cacheMisses, err = meter.Int64Counter(
		"cache_misses_total",
		metric.WithDescription("Total number of cache lookups that required an engine call"),
	); err != nil {
		return nil, err
	}

	if m.fallbacks, err = meter.Int64Counter(
		"fallbacks_total",
		metric.WithDescription("Total number of cloud failures retried on the local engine"),
	); err != nil {
		return nil, err
	}

	if m.engineCalls, err = meter.Int64Counter(
		"engine_calls_total",
		metric.WithDescription("Total number of engine invocations by outcome"),
	); err != nil {
		return nil, err
	}

	if m.engineDuration, err = meter.Float64Histogram(
		"engine_duration_seconds",
		metric.WithDescription("Time taken by an engine to analyze a pack"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *gatewayMetrics) IncCacheHit(ctx context.Context, engine string) {
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("engine", engine)))
}

func (m *gatewayMetrics) IncCacheMiss(ctx context.Context, engine string) {
	m.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("engine", engine)))
}

func (m *gatewayMetrics) IncFallback(ctx context.Context, from, to string) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *gatewayMetrics) ObserveEngine(ctx context.Context, engine, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("status", status),
	)
	m.engineCalls.Add(ctx, 1, attrs)
	m.engineDuration.Record(ctx, duration.Seconds(), attrs)
}
