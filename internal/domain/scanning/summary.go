package scanning

import "fmt"

func summaryLine(r *Report) string {
	c := r.Counters
	line := fmt.Sprintf("%d checks: %d passed, %d failed", c.TotalChecks, c.PassedChecks, c.FailedChecks)
	if c.SkippedChecks > 0 {
		line += fmt.Sprintf(", %d skipped", c.SkippedChecks)
	}
	if r.GateStatus != "" {
		line = fmt.Sprintf("%s (%s)", line, r.GateStatus)
	}
	return line
}
