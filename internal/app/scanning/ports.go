package scanning

import (
	"context"

	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/internal/domain/scanning"
)

// ProgressReporter receives progress updates while a scan runs. Reporting
// failures are logged by the Runner and otherwise ignored.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, p scanning.Progress) error
}

// ReportStore persists report snapshots.
type ReportStore interface {
	Save(ctx context.Context, r scanning.Report) error
}

// EnrichOptions controls AI enrichment of a finished report.
type EnrichOptions struct {
	Mode        analysis.Mode
	ForceEngine string
}

// Enricher produces an AI narrative for a gated report. Implementations
// must not fail: problems are expressed through the returned status.
type Enricher interface {
	Enrich(ctx context.Context, r scanning.Report, opts EnrichOptions) analysis.EnrichedReport
}
