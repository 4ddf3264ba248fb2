// Package ai routes evidence packs to analysis engines and turns their output
// into enriched reports. Engine failures degrade the enrichment, never the scan.
package ai

import (
	"context"
	"time"

	"github.com/ahrav/buenobot/internal/domain/analysis"
)

// Engine produces a narrative for an evidence pack.
type Engine interface {
	Name() string
	// Cloud reports whether the engine runs outside the local network.
	Cloud() bool
	Analyze(ctx context.Context, pack analysis.EvidencePack, mode analysis.Mode) (analysis.Narrative, error)
}

// Cache stores completed enrichments keyed by commit, evidence hash and engine.
type Cache interface {
	Get(ctx context.Context, commit, evidenceHash, engine string) (analysis.EnrichedReport, bool)
	Set(ctx context.Context, commit, evidenceHash, engine string, rep analysis.EnrichedReport) error
}

// GatewayMetrics records gateway outcomes.
type GatewayMetrics interface {
	IncCacheHit(ctx context.Context, engine string)
	IncCacheMiss(ctx context.Context, engine string)
	IncFallback(ctx context.Context, from, to string)
	ObserveEngine(ctx context.Context, engine, status string, duration time.Duration)
}
