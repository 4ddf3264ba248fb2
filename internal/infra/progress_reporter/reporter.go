// Package progressreporter bridges the Runner's progress port onto a
// publisher such as the in-memory broker, so CLI and API consumers can
// follow a scan without polling the report.
package progressreporter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	scanSvc "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

// Publisher broadcasts progress updates.
type Publisher interface {
	PublishProgress(ctx context.Context, p scanning.Progress) error
}

var _ scanSvc.ProgressReporter = (*BrokerProgressReporter)(nil)

// BrokerProgressReporter publishes every progress update it receives.
type BrokerProgressReporter struct {
	publisher Publisher

	logger *logger.Logger
	tracer trace.Tracer
}

// New creates a new BrokerProgressReporter.
func New(publisher Publisher, log *logger.Logger, tracer trace.Tracer) *BrokerProgressReporter {
	return &BrokerProgressReporter{
		publisher: publisher,
		logger:    log.With("component", "progress_reporter"),
		tracer:    tracer,
	}
}

// ReportProgress publishes p. It returns an error if publishing fails.
func (r *BrokerProgressReporter) ReportProgress(ctx context.Context, p scanning.Progress) error {
	ctx, span := r.tracer.Start(
		ctx,
		"progress_reporter.report_progress",
		trace.WithAttributes(
			attribute.String("scan_id", p.ScanID),
			attribute.String("phase", string(p.Phase)),
			attribute.String("check_id", p.CheckID),
			attribute.Int("index", p.Index),
			attribute.Int("total", p.Total),
		),
	)
	defer span.End()

	if err := r.publisher.PublishProgress(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish progress")
		return fmt.Errorf("failed to publish progress for scan %s: %w", p.ScanID, err)
	}
	span.AddEvent("progress_published")
	r.logger.Debug(ctx, "progress published", "scan_id", p.ScanID, "phase", string(p.Phase), "check_id", p.CheckID)

	return nil
}
