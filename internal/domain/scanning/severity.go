package scanning

import "strings"

// Severity classifies how serious a Finding is. The zero value is not a
// valid severity; use ParseSeverity when reading untrusted input.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

func (s Severity) String() string { return string(s) }

// Rank orders severities from most (0) to least (4) severe. Unknown values
// sort after info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	case SeverityInfo:
		return 4
	default:
		return 5
	}
}

// ParseSeverity normalizes a severity string. Unrecognized values map to
// SeverityInfo so that malformed input never escalates a gate decision.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "crit":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "moderate", "warning", "warn":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Priority expresses remediation urgency, P0 being the most urgent.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// PriorityForSeverity derives the default priority for a severity.
func PriorityForSeverity(s Severity) Priority {
	switch s {
	case SeverityCritical:
		return PriorityP0
	case SeverityHigh:
		return PriorityP1
	case SeverityMedium:
		return PriorityP2
	case SeverityLow:
		return PriorityP3
	default:
		return PriorityP4
	}
}

// ParsePriority normalizes a priority label, returning false when the value
// is not one of P0..P4.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3, PriorityP4:
		return p, true
	default:
		return "", false
	}
}

// Rank orders priorities with P0 first.
func (p Priority) Rank() int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	case PriorityP4:
		return 4
	default:
		return 5
	}
}
