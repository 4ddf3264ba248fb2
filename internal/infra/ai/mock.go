package ai

import (
	"cmp"
	"context"
	"fmt"
	"sort"

	appai "github.com/ahrav/buenobot/internal/app/ai"
	"github.com/ahrav/buenobot/internal/domain/analysis"
)

var _ appai.Engine = (*MockEngine)(nil)

// MockEngineName is the default name of the offline engine.
const MockEngineName = "mock"

// MockEngine derives a deterministic narrative from the pack itself. It is
// the local engine when no model server is configured.
type MockEngine struct{ name string }

// NewMockEngine creates a MockEngine. An empty name uses MockEngineName.
func NewMockEngine(name string) *MockEngine {
	if name == "" {
		name = MockEngineName
	}
	return &MockEngine{name: name}
}

func (e *MockEngine) Name() string { return e.name }
func (e *MockEngine) Cloud() bool  { return false }

var severityWeight = map[string]int{"critical": 40, "high": 20, "medium": 8, "low": 2}

var severityPriority = map[string]string{"critical": "P0", "high": "P1", "medium": "P2", "low": "P3", "info": "P4"}

// Analyze implements appai.Engine.
func (e *MockEngine) Analyze(ctx context.Context, pack analysis.EvidencePack, mode analysis.Mode) (analysis.Narrative, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Narrative{}, err
	}

	type group struct {
		rule     string
		severity string
		ids      []string
	}
	groups := map[string]*group{}
	var order []string
	risk := 0
	for _, f := range pack.TopFindings {
		risk += severityWeight[f.Severity]
		key := f.RuleName
		if key == "" {
			key = f.CheckID
		}
		g, ok := groups[key]
		if !ok {
			g = &group{rule: key, severity: f.Severity}
			groups[key] = g
			order = append(order, key)
		}
		g.ids = append(g.ids, f.ID)
	}

	limit := 5
	if mode == analysis.ModeQuick {
		limit = 2
	}

	n := analysis.Narrative{
		Summary: fmt.Sprintf("Gate %s with %d finding(s) across %d rule(s).",
			pack.GateStatus, pack.Metrics.TotalFindings, len(order)),
		RootCauses:          []analysis.RootCause{},
		Recommendations:     []analysis.Recommendation{},
		RiskScore:           risk,
		Confidence:          0.3,
		SuggestedNextChecks: []string{},
		NotableAnomalies:    []string{},
	}
	for _, key := range order[:min(limit, len(order))] {
		g := groups[key]
		n.RootCauses = append(n.RootCauses, analysis.RootCause{
			Cause:       g.rule,
			EvidenceIDs: g.ids,
			Severity:    g.severity,
			Explanation: fmt.Sprintf("%d finding(s) reported by %s.", len(g.ids), g.rule),
		})
		n.Recommendations = append(n.Recommendations, analysis.Recommendation{
			Title:       "Address " + g.rule,
			Priority:    cmp.Or(severityPriority[g.severity], "P2"),
			Effort:      "medium",
			Description: fmt.Sprintf("Review evidence %v and fix the underlying %s issue.", g.ids, g.rule),
		})
	}

	for _, t := range pack.RiskTriggers {
		n.NotableAnomalies = append(n.NotableAnomalies, "risk trigger: "+t)
	}
	var failing []string
	for item, ok := range pack.Checklist {
		if !ok {
			failing = append(failing, item)
		}
	}
	sort.Strings(failing)
	for _, item := range failing {
		n.SuggestedNextChecks = append(n.SuggestedNextChecks, "re-verify "+item)
	}

	n.Clamp()
	return n, nil
}
