package scanning

import (
	"fmt"
	"strings"
)

// Finding is a single observation produced by a check. Findings are values;
// once appended to a CheckResult they are never modified.
type Finding struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Severity       Severity `json:"severity"`
	Location       string   `json:"location,omitempty"`
	Evidence       string   `json:"evidence,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	Priority       Priority `json:"priority"`

	// RuleName identifies the rule that produced this finding. Checks should
	// set it explicitly; when empty it is recovered from a "[rule] message"
	// formatted title.
	RuleName string `json:"rule_name,omitempty"`
}

// FindingOption customizes a Finding built by NewFinding.
type FindingOption func(*Finding)

// WithLocation sets the file:line or endpoint the finding refers to.
func WithLocation(loc string) FindingOption { return func(f *Finding) { f.Location = loc } }

// WithEvidence attaches an already redacted evidence snippet.
func WithEvidence(ev string) FindingOption { return func(f *Finding) { f.Evidence = ev } }

// WithRecommendation attaches remediation guidance.
func WithRecommendation(rec string) FindingOption {
	return func(f *Finding) { f.Recommendation = rec }
}

// WithPriority overrides the severity-derived priority.
func WithPriority(p Priority) FindingOption { return func(f *Finding) { f.Priority = p } }

// WithRule records the producing rule. The title is prefixed with
// "[rule] " if it is not already.
func WithRule(rule string) FindingOption { return func(f *Finding) { f.RuleName = rule } }

// NewFinding builds a Finding, deriving the priority from severity when no
// explicit priority is supplied.
func NewFinding(title, description string, sev Severity, opts ...FindingOption) Finding {
	f := Finding{
		Title:       title,
		Description: description,
		Severity:    sev,
	}
	for _, opt := range opts {
		opt(&f)
	}

	if f.RuleName != "" && ParseRuleName(f.Title) == "" {
		f.Title = fmt.Sprintf("[%s] %s", f.RuleName, f.Title)
	}
	if f.RuleName == "" {
		f.RuleName = ParseRuleName(f.Title)
	}
	if f.Priority == "" {
		f.Priority = PriorityForSeverity(sev)
	}
	return f
}

// Rule returns the structured rule name, falling back to parsing the title
// for findings created without one.
func (f Finding) Rule() string {
	if f.RuleName != "" {
		return f.RuleName
	}
	return ParseRuleName(f.Title)
}

// EffectivePriority returns the explicit priority or the severity default.
func (f Finding) EffectivePriority() Priority {
	if f.Priority != "" {
		return f.Priority
	}
	return PriorityForSeverity(f.Severity)
}

// ParseRuleName extracts "rule_name" from a title of the form
// "[rule_name] message". Any other shape yields "".
func ParseRuleName(title string) string {
	t := strings.TrimSpace(title)
	if !strings.HasPrefix(t, "[") {
		return ""
	}
	end := strings.Index(t, "]")
	if end <= 1 {
		return ""
	}
	name := strings.TrimSpace(t[1:end])
	if name == "" || strings.ContainsAny(name, " \t[") {
		return ""
	}
	return name
}
