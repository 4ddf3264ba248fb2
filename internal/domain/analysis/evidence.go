// Package analysis holds the value types exchanged with the AI layer: the
// bounded evidence pack derived from a report and the enriched narrative
// produced from it.
package analysis

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// EvidenceFinding is a redacted projection of a single finding.
type EvidenceFinding struct {
	ID             string `json:"id"`
	CheckID        string `json:"check_id"`
	Category       string `json:"category"`
	Title          string `json:"title"`
	Severity       string `json:"severity"`
	RuleName       string `json:"rule_name,omitempty"`
	Location       string `json:"location,omitempty"`
	Evidence       string `json:"evidence,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// PerformanceMetrics summarizes scan-wide totals.
type PerformanceMetrics struct {
	TotalChecks   int   `json:"total_checks"`
	PassedChecks  int   `json:"passed_checks"`
	FailedChecks  int   `json:"failed_checks"`
	TotalFindings int   `json:"total_findings"`
	DurationMS    int64 `json:"duration_ms"`
}

// EvidencePack is the bounded, sanitized view of a report that may leave
// the process. It is immutable once built.
type EvidencePack struct {
	ScanID             string             `json:"scan_id"`
	Environment        string             `json:"environment"`
	Commit             string             `json:"commit,omitempty"`
	GateStatus         string             `json:"gate_status"`
	GateReasons        []string           `json:"gate_reasons"`
	Checklist          map[string]bool    `json:"checklist"`
	RiskTriggers       []string           `json:"risk_triggers"`
	TopFindings        []EvidenceFinding  `json:"top_findings"`
	ContractViolations []EvidenceFinding  `json:"contract_violations"`
	StaticIssues       []EvidenceFinding  `json:"static_issues"`
	Metrics            PerformanceMetrics `json:"metrics"`
}

// Hash returns a deterministic content hash of the pack. The scan id and run
// duration are excluded so that two scans with identical evidence share
// cache entries.
func (p EvidencePack) Hash() (string, error) {
	cp := p
	cp.ScanID = ""
	cp.Metrics.DurationMS = 0

	// encoding/json emits map keys in sorted order, which keeps the
	// serialization stable across runs.
	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("marshal evidence pack: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HasSeverity reports whether any top finding carries one of the given severities.
func (p EvidencePack) HasSeverity(severities ...string) bool {
	for _, f := range p.TopFindings {
		for _, s := range severities {
			if f.Severity == s {
				return true
			}
		}
	}
	return false
}
