package ai

import (
	"context"

	"github.com/ahrav/buenobot/internal/app/evidence"
	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/internal/domain/scanning"
)

var _ appscanning.Enricher = (*ReportEnricher)(nil)

// ReportEnricher builds an evidence pack from a finished report and hands it
// to the gateway.
type ReportEnricher struct {
	builder *evidence.Builder
	gateway *Gateway
}

// NewReportEnricher creates a ReportEnricher.
func NewReportEnricher(builder *evidence.Builder, gateway *Gateway) *ReportEnricher {
	return &ReportEnricher{builder: builder, gateway: gateway}
}

// Enrich implements appscanning.Enricher.
func (e *ReportEnricher) Enrich(
	ctx context.Context,
	r scanning.Report,
	opts appscanning.EnrichOptions,
) analysis.EnrichedReport {
	pack := e.builder.Build(&r, "", "")
	return e.gateway.Analyze(ctx, pack, opts.Mode, opts.ForceEngine)
}
