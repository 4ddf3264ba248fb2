package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRuleName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "conventional title", title: "[respects_filter] value ignores fecha_desde", want: "respects_filter"},
		{name: "leading whitespace", title: "  [sql_injection_risk] concat", want: "sql_injection_risk"},
		{name: "no brackets", title: "plain title", want: ""},
		{name: "empty brackets", title: "[] nothing", want: ""},
		{name: "spaces in name", title: "[not a rule] message", want: ""},
		{name: "unclosed", title: "[oops message", want: ""},
		{name: "empty", title: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseRuleName(tt.title))
		})
	}
}

func TestNewFinding(t *testing.T) {
	t.Parallel()

	t.Run("rule prefixes title", func(t *testing.T) {
		f := NewFinding("token exposed", "desc", SeverityHigh, WithRule("no_credentials_in_output"))
		assert.Equal(t, "[no_credentials_in_output] token exposed", f.Title)
		assert.Equal(t, "no_credentials_in_output", f.RuleName)
		assert.Equal(t, PriorityP1, f.Priority)
	})

	t.Run("rule already in title is not duplicated", func(t *testing.T) {
		f := NewFinding("[sum_equals] totals differ", "", SeverityMedium, WithRule("sum_equals"))
		assert.Equal(t, "[sum_equals] totals differ", f.Title)
	})

	t.Run("rule recovered from title", func(t *testing.T) {
		f := NewFinding("[hardcoded_credentials] aws key", "", SeverityCritical)
		assert.Equal(t, "hardcoded_credentials", f.RuleName)
		assert.Equal(t, "hardcoded_credentials", f.Rule())
	})

	t.Run("explicit priority wins", func(t *testing.T) {
		f := NewFinding("x", "", SeverityLow, WithPriority(PriorityP0), WithLocation("main.go:3"))
		assert.Equal(t, PriorityP0, f.EffectivePriority())
		assert.Equal(t, "main.go:3", f.Location)
	})

	t.Run("literal finding falls back to title parse", func(t *testing.T) {
		f := Finding{Title: "[filter_not_respected] x", Severity: SeverityInfo}
		assert.Equal(t, "filter_not_respected", f.Rule())
		assert.Equal(t, PriorityP4, f.EffectivePriority())
	})
}

func TestSeverityOrdering(t *testing.T) {
	t.Parallel()

	ordered := []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1].Rank(), ordered[i].Rank())
	}
	assert.Equal(t, SeverityInfo, ParseSeverity("bogus"))
	assert.Equal(t, SeverityHigh, ParseSeverity(" HIGH "))
}
