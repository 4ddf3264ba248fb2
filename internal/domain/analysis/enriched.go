package analysis

import (
	"math"
	"strings"
	"time"
)

// Status is the outcome of an AI analysis attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Mode is the requested depth of analysis.
type Mode string

const (
	ModeQuick    Mode = "quick"
	ModeStandard Mode = "standard"
	ModeDeep     Mode = "deep"
)

// ParseMode normalizes a mode name, defaulting to ModeStandard.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeQuick:
		return ModeQuick
	case ModeDeep:
		return ModeDeep
	default:
		return ModeStandard
	}
}

// RootCause explains one underlying problem linked to evidence ids.
type RootCause struct {
	Cause       string   `json:"cause"`
	EvidenceIDs []string `json:"evidence_ids"`
	Severity    string   `json:"severity"`
	Explanation string   `json:"explanation"`
}

// Recommendation is an engine-suggested remediation.
type Recommendation struct {
	Title       string `json:"title"`
	Priority    string `json:"priority"`
	Effort      string `json:"effort"`
	Description string `json:"description"`
	CodeExample string `json:"code_example,omitempty"`
}

// Narrative is the engine output schema after normalization.
type Narrative struct {
	Summary             string           `json:"summary"`
	RootCauses          []RootCause      `json:"root_causes"`
	Recommendations     []Recommendation `json:"recommendations"`
	RiskScore           int              `json:"risk_score"`
	Confidence          float64          `json:"confidence"`
	SuggestedNextChecks []string         `json:"suggested_next_checks"`
	NotableAnomalies    []string         `json:"notable_anomalies"`
}

// EnrichedReport is the result of one AI analysis attempt.
type EnrichedReport struct {
	Status     Status `json:"ai_status"`
	EngineUsed string `json:"engine_used,omitempty"`

	Narrative

	RoutingReason   string    `json:"routing_reason,omitempty"`
	ComplexityScore int       `json:"complexity_score"`
	FallbackUsed    bool      `json:"fallback_used"`
	Cached          bool      `json:"cached"`
	DurationMS      int64     `json:"duration_ms"`
	Error           string    `json:"error,omitempty"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Clone returns a deep copy.
func (e EnrichedReport) Clone() EnrichedReport {
	out := e
	if e.RootCauses != nil {
		out.RootCauses = make([]RootCause, len(e.RootCauses))
		for i, rc := range e.RootCauses {
			rc.EvidenceIDs = append([]string(nil), rc.EvidenceIDs...)
			out.RootCauses[i] = rc
		}
	}
	out.Recommendations = append([]Recommendation(nil), e.Recommendations...)
	out.SuggestedNextChecks = append([]string(nil), e.SuggestedNextChecks...)
	out.NotableAnomalies = append([]string(nil), e.NotableAnomalies...)
	return out
}

// Clamp forces numeric fields into their documented ranges.
func (n *Narrative) Clamp() {
	if n.RiskScore < 0 {
		n.RiskScore = 0
	}
	if n.RiskScore > 100 {
		n.RiskScore = 100
	}
	if n.Confidence < 0 || math.IsNaN(n.Confidence) {
		n.Confidence = 0
	}
	if n.Confidence > 1 {
		n.Confidence = 1
	}
}
