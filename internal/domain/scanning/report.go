package scanning

import (
	"sort"
	"time"

	"github.com/ahrav/buenobot/internal/domain/analysis"
)

// Metadata describes the circumstances of a scan.
type Metadata struct {
	ScanID      string    `json:"scan_id"`
	Profile     string    `json:"profile"`
	Environment string    `json:"environment"`
	Trigger     string    `json:"trigger"`
	Commit      string    `json:"commit,omitempty"`
	BaseURL     string    `json:"base_url,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// Counters are scan-wide totals updated as checks complete.
type Counters struct {
	TotalChecks   int   `json:"total_checks"`
	PassedChecks  int   `json:"passed_checks"`
	FailedChecks  int   `json:"failed_checks"`
	ErrorChecks   int   `json:"error_checks"`
	SkippedChecks int   `json:"skipped_checks"`
	DurationMS    int64 `json:"duration_ms"`
}

// Recommendation is one entry of the prioritized remediation list derived
// when a report is finalized.
type Recommendation struct {
	Priority Priority `json:"priority"`
	Title    string   `json:"title"`
	Action   string   `json:"action"`
	CheckID  string   `json:"check_id,omitempty"`
}

// Report is the root aggregate of one scan. It is mutated only by the
// Runner while RUNNING and is read-only once it reaches a terminal status.
type Report struct {
	Metadata Metadata     `json:"metadata"`
	Status   ReportStatus `json:"status"`

	// Results maps a category to its check results in execution order.
	Results map[string][]CheckResult `json:"results"`

	Counters Counters `json:"counters"`

	// CurrentCheck is the check being executed while RUNNING.
	CurrentCheck string `json:"current_check,omitempty"`
	// Planned is the number of checks selected for the profile.
	Planned int `json:"planned"`

	GateStatus      GateStatus       `json:"gate_status,omitempty"`
	GateReason      string           `json:"gate_reason,omitempty"`
	TopFindings     []Finding        `json:"top_findings"`
	Checklist       map[string]bool  `json:"checklist"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`

	AI *analysis.EnrichedReport `json:"ai,omitempty"`
}

// NewReport creates a report in RUNNING status.
func NewReport(meta Metadata) *Report {
	return &Report{
		Metadata:  meta,
		Status:    ReportStatusRunning,
		Results:   make(map[string][]CheckResult),
		Checklist: make(map[string]bool),
	}
}

// AddResult appends a result under its category and updates counters.
func (r *Report) AddResult(res CheckResult) {
	if r.Results == nil {
		r.Results = make(map[string][]CheckResult)
	}
	r.Results[res.Category] = append(r.Results[res.Category], res)

	r.Counters.TotalChecks++
	switch res.Status {
	case CheckStatusPassed:
		r.Counters.PassedChecks++
	case CheckStatusFailed:
		r.Counters.FailedChecks++
	case CheckStatusError:
		r.Counters.FailedChecks++
		r.Counters.ErrorChecks++
	case CheckStatusSkipped:
		r.Counters.SkippedChecks++
	}
}

// Transition moves the report to target, enforcing the lifecycle.
func (r *Report) Transition(target ReportStatus) error {
	if err := r.Status.ValidateTransition(target); err != nil {
		return err
	}
	r.Status = target
	return nil
}

// Categories returns the result categories in sorted order.
func (r *Report) Categories() []string {
	cats := make([]string, 0, len(r.Results))
	for c := range r.Results {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// CheckResults returns every result, walking categories in sorted order and
// results in execution order.
func (r *Report) CheckResults() []CheckResult {
	var out []CheckResult
	for _, c := range r.Categories() {
		out = append(out, r.Results[c]...)
	}
	return out
}

// LocatedFinding pairs a Finding with the check that produced it.
type LocatedFinding struct {
	Finding
	CheckID  string
	Category string
}

// AllFindings flattens findings in the same deterministic order as CheckResults.
func (r *Report) AllFindings() []LocatedFinding {
	var out []LocatedFinding
	for _, res := range r.CheckResults() {
		for _, f := range res.Findings {
			out = append(out, LocatedFinding{Finding: f, CheckID: res.CheckID, Category: res.Category})
		}
	}
	return out
}

// Clone returns a deep copy suitable for publishing to concurrent readers.
func (r *Report) Clone() Report {
	out := *r

	if r.Results != nil {
		out.Results = make(map[string][]CheckResult, len(r.Results))
		for cat, results := range r.Results {
			cp := make([]CheckResult, len(results))
			for i, res := range results {
				cp[i] = res.clone()
			}
			out.Results[cat] = cp
		}
	}
	if r.TopFindings != nil {
		out.TopFindings = append([]Finding(nil), r.TopFindings...)
	}
	if r.Checklist != nil {
		out.Checklist = make(map[string]bool, len(r.Checklist))
		for k, v := range r.Checklist {
			out.Checklist[k] = v
		}
	}
	if r.Recommendations != nil {
		out.Recommendations = append([]Recommendation(nil), r.Recommendations...)
	}
	if r.AI != nil {
		ai := r.AI.Clone()
		out.AI = &ai
	}
	return out
}

// Summary renders a one-line description used by the history index.
func (r *Report) Summary() string {
	return summaryLine(r)
}
