package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/buenobot/internal/domain/scanning"
)

func reportWith(results ...scanning.CheckResult) *scanning.Report {
	r := scanning.NewReport(scanning.Metadata{ScanID: "scan-1", Profile: "quick"})
	for _, res := range results {
		r.AddResult(res)
	}
	return r
}

func result(id, category string, findings ...scanning.Finding) scanning.CheckResult {
	return scanning.CheckResult{
		CheckID:  id,
		Category: category,
		Status:   scanning.StatusFromFindings(findings),
		Findings: findings,
	}
}

func TestCompute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		report     *scanning.Report
		wantStatus scanning.GateStatus
		wantReason string
		wantTop    int
	}{
		{
			name:       "no findings passes",
			report:     reportWith(result("api_health", scanning.CategoryHealth)),
			wantStatus: scanning.GatePass,
			wantReason: PassReason,
			wantTop:    0,
		},
		{
			name:       "empty report passes",
			report:     reportWith(),
			wantStatus: scanning.GatePass,
			wantReason: PassReason,
		},
		{
			name: "low severity gate-breaker fails",
			report: reportWith(result("hardcoded_secrets", scanning.CategorySecurity,
				scanning.NewFinding("token in url", "", scanning.SeverityLow, scanning.WithRule(RuleCredentialsInQuery)),
			)),
			wantStatus: scanning.GateFail,
			wantReason: "Gate-breaker rules violated: credentials_in_query_params",
			wantTop:    1,
		},
		{
			name: "gate-breaker parsed from title",
			report: reportWith(scanning.CheckResult{
				CheckID:  "legacy",
				Category: scanning.CategoryStaticAnalysis,
				Status:   scanning.CheckStatusPassed,
				Findings: []scanning.Finding{{Title: "[sql_injection_risk] query concatenation", Severity: scanning.SeverityInfo}},
			}),
			wantStatus: scanning.GateFail,
			wantReason: "Gate-breaker rules violated: sql_injection_risk",
			wantTop:    1,
		},
		{
			name: "single critical fails",
			report: reportWith(result("contract_validation", scanning.CategoryContracts,
				scanning.NewFinding("totals mismatch", "", scanning.SeverityCritical, scanning.WithRule("sum_equals")),
			)),
			wantStatus: scanning.GateFail,
			wantReason: "1 critical finding(s) detected",
			wantTop:    1,
		},
		{
			name: "high fails",
			report: reportWith(result("api_health", scanning.CategoryHealth,
				scanning.NewFinding("down", "", scanning.SeverityHigh),
				scanning.NewFinding("slow", "", scanning.SeverityHigh),
			)),
			wantStatus: scanning.GateFail,
			wantReason: "2 high severity finding(s) detected",
			wantTop:    2,
		},
		{
			name: "medium warns",
			report: reportWith(result("contract_validation", scanning.CategoryContracts,
				scanning.NewFinding("null id", "", scanning.SeverityMedium),
				scanning.NewFinding("note", "", scanning.SeverityLow),
			)),
			wantStatus: scanning.GateWarn,
			wantReason: "1 medium severity finding(s) require review",
			wantTop:    1,
		},
		{
			name: "low and info never affect status",
			report: reportWith(result("contract_validation", scanning.CategoryContracts,
				scanning.NewFinding("note", "", scanning.SeverityLow),
				scanning.NewFinding("fyi", "", scanning.SeverityInfo),
			)),
			wantStatus: scanning.GatePass,
			wantReason: PassReason,
			wantTop:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Compute(tt.report)

			assert.Equal(t, tt.wantStatus, d.Status)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Len(t, d.TopFindings, tt.wantTop)
		})
	}
}

func TestCompute_TopFindingsOrdering(t *testing.T) {
	t.Parallel()

	var findings []scanning.Finding
	for i := 0; i < 4; i++ {
		findings = append(findings, scanning.NewFinding("medium issue", "", scanning.SeverityMedium))
	}
	findings = append(findings,
		scanning.NewFinding("high issue", "", scanning.SeverityHigh),
		scanning.NewFinding("crit issue", "", scanning.SeverityCritical),
		scanning.NewFinding("leak", "", scanning.SeverityLow, scanning.WithRule(RuleCredentialsInOutput)),
		scanning.NewFinding("b-critical", "", scanning.SeverityCritical),
	)
	r := reportWith(result("contract_validation", scanning.CategoryContracts, findings...))

	d := Compute(r)
	require.Len(t, d.TopFindings, MaxTopFindings)

	titles := make([]string, len(d.TopFindings))
	for i, f := range d.TopFindings {
		titles[i] = f.Title
	}
	assert.Equal(t, []string{
		"[no_credentials_in_output] leak",
		"b-critical",
		"crit issue",
		"high issue",
		"medium issue",
	}, titles)
}

func TestCompute_IndependentOfCheckOrder(t *testing.T) {
	t.Parallel()

	a := result("check_a", scanning.CategorySecurity, scanning.NewFinding("alpha", "", scanning.SeverityHigh))
	b := result("check_b", scanning.CategorySecurity, scanning.NewFinding("beta", "", scanning.SeverityHigh))

	d1 := Compute(reportWith(a, b))
	d2 := Compute(reportWith(b, a))
	assert.Equal(t, d1.TopFindings, d2.TopFindings)
}

func TestCompute_Idempotent(t *testing.T) {
	t.Parallel()

	r := reportWith(result("contract_validation", scanning.CategoryContracts,
		scanning.NewFinding("filter ignored", "", scanning.SeverityHigh, scanning.WithRule(RuleRespectsFilter)),
		scanning.NewFinding("null", "", scanning.SeverityMedium),
	))

	first := Compute(r)
	second := Compute(r)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Reason, second.Reason)
	assert.Equal(t, first.TopFindings, second.TopFindings)
}

func TestCompute_ReclassifiesAfterAppend(t *testing.T) {
	t.Parallel()

	r := reportWith(result("contract_validation", scanning.CategoryContracts,
		scanning.NewFinding("null", "", scanning.SeverityMedium),
	))
	assert.Equal(t, scanning.GateWarn, Compute(r).Status)

	r.AddResult(result("sql_injection", scanning.CategoryStaticAnalysis,
		scanning.NewFinding("concat", "", scanning.SeverityHigh, scanning.WithRule(RuleSQLInjectionRisk)),
	))
	d := Compute(r)
	assert.Equal(t, scanning.GateFail, d.Status)
	assert.Contains(t, d.Reason, RuleSQLInjectionRisk)
}

func TestCompute_DistinctGateBreakerNames(t *testing.T) {
	t.Parallel()

	r := reportWith(result("contract_validation", scanning.CategoryContracts,
		scanning.NewFinding("a", "", scanning.SeverityHigh, scanning.WithRule(RuleSubsetOfParam)),
		scanning.NewFinding("b", "", scanning.SeverityHigh, scanning.WithRule(RuleRespectsFilter)),
		scanning.NewFinding("c", "", scanning.SeverityHigh, scanning.WithRule(RuleRespectsFilter)),
	))

	d := Compute(r)
	assert.Equal(t, "Gate-breaker rules violated: respects_filter, subset_of_param", d.Reason)
}

func TestApply(t *testing.T) {
	t.Parallel()

	r := reportWith(result("api_health", scanning.CategoryHealth,
		scanning.NewFinding("down", "", scanning.SeverityHigh),
	))
	d := Apply(r)

	assert.Equal(t, d.Status, r.GateStatus)
	assert.Equal(t, d.Reason, r.GateReason)
	assert.Equal(t, d.TopFindings, r.TopFindings)
	assert.False(t, r.Checklist[ItemAPIResponding])
}
