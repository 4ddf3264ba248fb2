// Package evidence projects a finished report into the bounded, sanitized
// EvidencePack handed to AI engines.
package evidence

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/internal/domain/gate"
	"github.com/ahrav/buenobot/internal/domain/scanning"
)

const (
	DefaultMaxFindings    = 20
	DefaultMaxPerCategory = 10
)

// Config bounds the size of a pack.
type Config struct {
	MaxFindings    int
	MaxPerCategory int
}

// heuristic derives a risk trigger from finding titles that carry no
// structured rule name.
type heuristic struct {
	trigger string
	all     []string
	any     []string
}

var heuristics = []heuristic{
	{trigger: gate.RuleCredentialsInQuery, all: []string{"password", "query"}},
	{trigger: gate.RuleCredentialsInQuery, all: []string{"token", "url"}},
	{trigger: gate.RuleSQLInjectionRisk, all: []string{"sql", "injection"}},
	{trigger: gate.RuleFilterNotRespected, all: []string{"filter"}, any: []string{"ignored", "not respected", "no respeta"}},
	{trigger: gate.RuleHardcodedCredentials, all: []string{"hardcoded"}, any: []string{"secret", "password", "credential", "key"}},
}

func (h heuristic) matches(title string) bool {
	for _, s := range h.all {
		if !strings.Contains(title, s) {
			return false
		}
	}
	if len(h.any) == 0 {
		return true
	}
	for _, s := range h.any {
		if strings.Contains(title, s) {
			return true
		}
	}
	return false
}

// Builder builds EvidencePacks.
type Builder struct {
	cfg       Config
	sanitizer *Sanitizer
}

// NewBuilder creates a Builder. Zero limits fall back to the defaults.
func NewBuilder(cfg Config, sanitizer *Sanitizer) *Builder {
	if cfg.MaxFindings <= 0 {
		cfg.MaxFindings = DefaultMaxFindings
	}
	if cfg.MaxPerCategory <= 0 {
		cfg.MaxPerCategory = DefaultMaxPerCategory
	}
	if sanitizer == nil {
		sanitizer = NewSanitizer()
	}
	return &Builder{cfg: cfg, sanitizer: sanitizer}
}

// Build projects r into a pack. Environment and commit override the report
// metadata when non-empty. The report is not modified.
func (b *Builder) Build(r *scanning.Report, environment, commit string) analysis.EvidencePack {
	pack := analysis.EvidencePack{
		ScanID:      r.Metadata.ScanID,
		Environment: cmp.Or(environment, r.Metadata.Environment),
		Commit:      cmp.Or(commit, r.Metadata.Commit),
		GateStatus:  string(r.GateStatus),
		GateReasons: []string{},
		Checklist:   make(map[string]bool, len(r.Checklist)),
	}
	if r.GateReason != "" {
		pack.GateReasons = append(pack.GateReasons, b.sanitizer.Sanitize(r.GateReason))
	}
	for k, v := range r.Checklist {
		pack.Checklist[k] = v
	}

	all := indexed(r.AllFindings())
	ranked := slices.Clone(all)
	slices.SortStableFunc(ranked, func(a, c numbered) int {
		return cmp.Or(
			cmp.Compare(a.Severity.Rank(), c.Severity.Rank()),
			cmp.Compare(breakerRank(a.Finding), breakerRank(c.Finding)),
		)
	})

	pack.TopFindings = b.project(ranked, b.cfg.MaxFindings, nil)
	pack.ContractViolations = b.project(all, b.cfg.MaxPerCategory, func(f numbered) bool {
		return f.Category == scanning.CategoryContracts
	})
	pack.StaticIssues = b.project(all, b.cfg.MaxPerCategory, func(f numbered) bool {
		return f.Category == scanning.CategoryStaticAnalysis
	})
	pack.RiskTriggers = riskTriggers(all)

	pack.Metrics = analysis.PerformanceMetrics{
		TotalChecks:   r.Counters.TotalChecks,
		PassedChecks:  r.Counters.PassedChecks,
		FailedChecks:  r.Counters.FailedChecks,
		TotalFindings: len(all),
		DurationMS:    r.Counters.DurationMS,
	}
	return pack
}

// numbered is a finding with its stable evidence id, assigned in report order.
type numbered struct {
	scanning.LocatedFinding
	id string
}

func indexed(findings []scanning.LocatedFinding) []numbered {
	out := make([]numbered, len(findings))
	for i, f := range findings {
		out[i] = numbered{LocatedFinding: f, id: fmt.Sprintf("F%d", i+1)}
	}
	return out
}

func (b *Builder) project(findings []numbered, limit int, keep func(numbered) bool) []analysis.EvidenceFinding {
	out := []analysis.EvidenceFinding{}
	for _, f := range findings {
		if len(out) >= limit {
			break
		}
		if keep != nil && !keep(f) {
			continue
		}
		out = append(out, analysis.EvidenceFinding{
			ID:             f.id,
			CheckID:        f.CheckID,
			Category:       f.Category,
			Title:          b.sanitizer.Sanitize(f.Title),
			Severity:       string(f.Severity),
			RuleName:       f.Rule(),
			Location:       b.sanitizer.Sanitize(f.Location),
			Evidence:       b.sanitizer.Sanitize(f.Evidence),
			Recommendation: b.sanitizer.Sanitize(f.Recommendation),
		})
	}
	return out
}

func breakerRank(f scanning.Finding) int {
	if gate.IsGateBreakerFinding(f) {
		return 0
	}
	return 1
}

func riskTriggers(findings []numbered) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, f := range findings {
		if rule := f.Rule(); gate.IsGateBreaker(rule) {
			add(rule)
		}
		title := strings.ToLower(f.Title)
		for _, h := range heuristics {
			if h.matches(title) {
				add(h.trigger)
			}
		}
	}
	slices.Sort(out)
	return out
}
