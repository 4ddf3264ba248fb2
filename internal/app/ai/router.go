package ai

import (
	"slices"

	"github.com/ahrav/buenobot/internal/domain/analysis"
)

// DefaultFindingsThreshold is the finding count above which a pack is
// considered complex.
const DefaultFindingsThreshold = 10

// Routing reasons reported on the enriched report.
const (
	ReasonNoCloudEngine = "no cloud engine configured"
	ReasonDeepMode      = "deep analysis requested"
	ReasonCritical      = "critical or high severity findings"
	ReasonComplex       = "complex evidence"
	ReasonDefault       = "default local analysis"
	ReasonForced        = "engine forced by caller"
)

// RouterConfig selects between cloud and local engines.
type RouterConfig struct {
	// CloudEngines lists the cloud engines that have credentials, most
	// preferred first.
	CloudEngines []string
	LocalEngine  string

	RouteCritical      bool
	RouteComplex       bool
	ComplexityTriggers []string
	FindingsThreshold  int
}

// Route is the outcome of engine selection.
type Route struct {
	Engine          string
	Reason          string
	ComplexityScore int
}

// Router picks an engine for a pack. It holds no mutable state.
type Router struct {
	cfg RouterConfig
}

// NewRouter creates a Router. A zero threshold uses DefaultFindingsThreshold.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.FindingsThreshold <= 0 {
		cfg.FindingsThreshold = DefaultFindingsThreshold
	}
	return &Router{cfg: cfg}
}

// Select applies the routing policy in order: no cloud engine, deep mode,
// critical findings, complexity, then the local default.
func (r *Router) Select(pack analysis.EvidencePack, mode analysis.Mode) Route {
	score := ComplexityScore(pack)
	local := Route{Engine: r.cfg.LocalEngine, ComplexityScore: score}

	if len(r.cfg.CloudEngines) == 0 {
		local.Reason = ReasonNoCloudEngine
		return local
	}
	cloud := Route{Engine: r.cfg.CloudEngines[0], ComplexityScore: score}

	switch {
	case mode == analysis.ModeDeep:
		cloud.Reason = ReasonDeepMode
		return cloud
	case r.cfg.RouteCritical && pack.HasSeverity("critical", "high"):
		cloud.Reason = ReasonCritical
		return cloud
	case r.cfg.RouteComplex && r.complex(pack):
		cloud.Reason = ReasonComplex
		return cloud
	}
	local.Reason = ReasonDefault
	return local
}

func (r *Router) complex(pack analysis.EvidencePack) bool {
	for _, t := range r.cfg.ComplexityTriggers {
		if slices.Contains(pack.RiskTriggers, t) {
			return true
		}
	}
	if findingCount(pack) > r.cfg.FindingsThreshold {
		return true
	}
	return len(pack.ContractViolations) > 0 && len(pack.StaticIssues) > 0
}

func findingCount(pack analysis.EvidencePack) int {
	return max(pack.Metrics.TotalFindings, len(pack.TopFindings))
}

// ComplexityScore is a 0-100 diagnostic of how involved a pack is.
func ComplexityScore(pack analysis.EvidencePack) int {
	score := 0
	for _, f := range pack.TopFindings {
		switch f.Severity {
		case "critical":
			score += 15
		case "high":
			score += 10
		case "medium":
			score += 5
		}
	}
	score += 5 * len(pack.RiskTriggers)
	if len(pack.ContractViolations) > 5 {
		score += 10
	}
	if len(pack.StaticIssues) > 10 {
		score += 10
	}
	return min(score, 100)
}
