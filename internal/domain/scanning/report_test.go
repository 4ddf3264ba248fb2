package scanning

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/buenobot/internal/domain/analysis"
)

func TestReport_AddResultCounters(t *testing.T) {
	t.Parallel()

	r := NewReport(Metadata{ScanID: "s1"})
	r.AddResult(CheckResult{CheckID: "a", Category: CategoryHealth, Status: CheckStatusPassed})
	r.AddResult(CheckResult{CheckID: "b", Category: CategoryHealth, Status: CheckStatusFailed})
	r.AddResult(NewErrorResult("c", "C", CategorySecurity, errors.New("boom")))
	r.AddResult(CheckResult{CheckID: "d", Category: CategorySecurity, Status: CheckStatusSkipped})

	assert.Equal(t, Counters{
		TotalChecks:   4,
		PassedChecks:  1,
		FailedChecks:  2,
		ErrorChecks:   1,
		SkippedChecks: 1,
	}, r.Counters)
	assert.Equal(t, []string{CategoryHealth, CategorySecurity}, r.Categories())
	assert.Equal(t, "check error: boom", r.Results[CategorySecurity][0].Summary)
}

func TestReport_ResultOrderPreserved(t *testing.T) {
	t.Parallel()

	r := NewReport(Metadata{})
	for _, id := range []string{"z", "a", "m"} {
		r.AddResult(CheckResult{CheckID: id, Category: CategoryContracts, Status: CheckStatusPassed})
	}

	var ids []string
	for _, res := range r.Results[CategoryContracts] {
		ids = append(ids, res.CheckID)
	}
	assert.Equal(t, []string{"z", "a", "m"}, ids)
}

func TestReport_Transition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    ReportStatus
		to      ReportStatus
		wantErr bool
	}{
		{name: "running to done", from: ReportStatusRunning, to: ReportStatusDone},
		{name: "running to cancelled", from: ReportStatusRunning, to: ReportStatusCancelled},
		{name: "running to failed", from: ReportStatusRunning, to: ReportStatusFailed},
		{name: "running to running", from: ReportStatusRunning, to: ReportStatusRunning, wantErr: true},
		{name: "done to failed", from: ReportStatusDone, to: ReportStatusFailed, wantErr: true},
		{name: "cancelled to done", from: ReportStatusCancelled, to: ReportStatusDone, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &Report{Status: tt.from}
			err := r.Transition(tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, r.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, r.Status)
		})
	}
}

func TestReport_CloneIsDeep(t *testing.T) {
	t.Parallel()

	r := NewReport(Metadata{ScanID: "s1"})
	r.AddResult(CheckResult{
		CheckID:  "a",
		Category: CategoryContracts,
		Status:   CheckStatusFailed,
		Findings: []Finding{NewFinding("x", "", SeverityHigh)},
	})
	r.Checklist["api_responding"] = true
	r.AI = &analysis.EnrichedReport{Status: analysis.StatusCompleted}

	cp := r.Clone()
	cp.Results[CategoryContracts][0].Findings[0].Title = "mutated"
	cp.Checklist["api_responding"] = false
	cp.AI.Status = analysis.StatusFailed

	assert.Equal(t, "x", r.Results[CategoryContracts][0].Findings[0].Title)
	assert.True(t, r.Checklist["api_responding"])
	assert.Equal(t, analysis.StatusCompleted, r.AI.Status)
}

func TestReport_Summary(t *testing.T) {
	t.Parallel()

	r := NewReport(Metadata{})
	r.AddResult(CheckResult{CheckID: "a", Category: CategoryHealth, Status: CheckStatusPassed})
	r.AddResult(CheckResult{CheckID: "b", Category: CategoryHealth, Status: CheckStatusSkipped})
	r.GateStatus = GatePass

	assert.Equal(t, "2 checks: 1 passed, 0 failed, 1 skipped (PASS)", r.Summary())
}
