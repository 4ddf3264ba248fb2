package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RunnerMetrics records scan and check outcomes.
type RunnerMetrics interface {
	IncScansStarted(ctx context.Context, profile string)
	IncScansFinished(ctx context.Context, status, gate string)
	ObserveCheck(ctx context.Context, checkID, status string, duration time.Duration)
	SetActiveScans(ctx context.Context, delta int64)
}

type runnerMetrics struct {
	scansStarted  metric.Int64Counter
	scansFinished metric.Int64Counter
	activeScans   metric.Int64UpDownCounter
	checksRun     metric.Int64Counter
	checkDuration metric.Float64Histogram
}

const namespace = "runner"

// NewRunnerMetrics creates RunnerMetrics backed by mp.
func NewRunnerMetrics(mp metric.MeterProvider) (*runnerMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(runnerMetrics)
	var err error

	if m.scansStarted, err = meter.Int64Counter(
		"scans_started_total",
		metric.WithDescription("Total number of scans started"),
	); err != nil {
		return nil, err
	}

	if m.scansFinished, err = meter.Int64Counter(
		"scans_finished_total",
		metric.WithDescription("Total number of scans finished by final status and gate"),
	); err != nil {
		return nil, err
	}

	if m.activeScans, err = meter.Int64UpDownCounter(
		"active_scans",
		metric.WithDescription("Number of scans currently running"),
	); err != nil {
		return nil, err
	}

	if m.checksRun, err = meter.Int64Counter(
		"checks_executed_total",
		metric.WithDescription("Total number of checks executed by status"),
	); err != nil {
		return nil, err
	}

	if m.checkDuration, err = meter.Float64Histogram(
		"check_duration_seconds",
		metric.WithDescription("Time taken to execute a check"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *runnerMetrics) IncScansStarted(ctx context.Context, profile string) {
	m.scansStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("profile", profile)))
}

func (m *runnerMetrics) IncScansFinished(ctx context.Context, status, gate string) {
	m.scansFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("gate", gate),
	))
}

func (m *runnerMetrics) ObserveCheck(ctx context.Context, checkID, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("check_id", checkID),
		attribute.String("status", status),
	)
	m.checksRun.Add(ctx, 1, attrs)
	m.checkDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *runnerMetrics) SetActiveScans(ctx context.Context, delta int64) {
	m.activeScans.Add(ctx, delta)
}
