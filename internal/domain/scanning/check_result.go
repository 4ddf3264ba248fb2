package scanning

// CheckStatus is the outcome of executing a single check.
type CheckStatus string

const (
	CheckStatusPassed  CheckStatus = "passed"
	CheckStatusFailed  CheckStatus = "failed"
	CheckStatusSkipped CheckStatus = "skipped"
	CheckStatusError   CheckStatus = "error"
)

func (s CheckStatus) String() string { return string(s) }

// Well-known check categories. Checks may use others; these are the ones
// the evidence builder and checklist treat specially.
const (
	CategoryHealth         = "health"
	CategoryContracts      = "contracts"
	CategorySecurity       = "security"
	CategoryStaticAnalysis = "static_analysis"
)

// CheckResult is the output of one check execution. The Runner records it
// once and never mutates it afterwards.
type CheckResult struct {
	CheckID    string      `json:"check_id"`
	CheckName  string      `json:"check_name"`
	Category   string      `json:"category"`
	Status     CheckStatus `json:"status"`
	DurationMS int64       `json:"duration_ms"`
	Findings   []Finding   `json:"findings"`
	Summary    string      `json:"summary"`
	LogTail    string      `json:"log_tail,omitempty"`
}

// NewErrorResult builds the synthetic result recorded when a check fails to
// complete.
func NewErrorResult(id, name, category string, err error) CheckResult {
	return CheckResult{
		CheckID:   id,
		CheckName: name,
		Category:  category,
		Status:    CheckStatusError,
		Summary:   "check error: " + err.Error(),
	}
}

// StatusFromFindings returns failed when any finding is at or above
// medium severity and passed otherwise.
func StatusFromFindings(findings []Finding) CheckStatus {
	for _, f := range findings {
		if f.Severity.Rank() <= SeverityMedium.Rank() {
			return CheckStatusFailed
		}
	}
	return CheckStatusPassed
}

func (c CheckResult) clone() CheckResult {
	out := c
	if c.Findings != nil {
		out.Findings = make([]Finding, len(c.Findings))
		copy(out.Findings, c.Findings)
	}
	return out
}
