// Package gate decides whether a release may proceed given the findings of
// a scan. Every function here is pure and total: the empty report passes.
package gate

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/ahrav/buenobot/internal/domain/scanning"
)

// MaxTopFindings bounds Decision.TopFindings.
const MaxTopFindings = 5

// PassReason is the reason reported when nothing blocks the release.
const PassReason = "No blocking findings"

// Decision is the outcome of a gate computation.
type Decision struct {
	Status      scanning.GateStatus
	Reason      string
	Checklist   map[string]bool
	TopFindings []scanning.Finding
}

type buckets struct {
	breakers []scanning.LocatedFinding
	critical []scanning.LocatedFinding
	high     []scanning.LocatedFinding
	medium   []scanning.LocatedFinding
}

func classify(findings []scanning.LocatedFinding) buckets {
	var b buckets
	for _, f := range findings {
		switch {
		case IsGateBreakerFinding(f.Finding):
			b.breakers = append(b.breakers, f)
		case f.Severity == scanning.SeverityCritical:
			b.critical = append(b.critical, f)
		case f.Severity == scanning.SeverityHigh:
			b.high = append(b.high, f)
		case f.Severity == scanning.SeverityMedium:
			b.medium = append(b.medium, f)
		}
	}
	for _, bucket := range [][]scanning.LocatedFinding{b.breakers, b.critical, b.high, b.medium} {
		slices.SortStableFunc(bucket, compareFindings)
	}
	return b
}

// compareFindings orders findings within a bucket so that the result does not
// depend on which check happened to run first.
func compareFindings(a, b scanning.LocatedFinding) int {
	return cmp.Or(
		cmp.Compare(a.Severity.Rank(), b.Severity.Rank()),
		strings.Compare(a.Rule(), b.Rule()),
		strings.Compare(a.Title, b.Title),
		strings.Compare(a.Location, b.Location),
		strings.Compare(a.CheckID, b.CheckID),
	)
}

// Compute classifies every finding in r and returns the gate decision. It
// reads r without modifying it, so repeated calls on the same report agree.
func Compute(r *scanning.Report) Decision {
	b := classify(r.AllFindings())

	d := Decision{Checklist: Checklist(r)}
	switch {
	case len(b.breakers) > 0:
		d.Status = scanning.GateFail
		d.Reason = "Gate-breaker rules violated: " + strings.Join(distinctRules(b.breakers), ", ")
	case len(b.critical) > 0:
		d.Status = scanning.GateFail
		d.Reason = fmt.Sprintf("%d critical finding(s) detected", len(b.critical))
	case len(b.high) > 0:
		d.Status = scanning.GateFail
		d.Reason = fmt.Sprintf("%d high severity finding(s) detected", len(b.high))
	case len(b.medium) > 0:
		d.Status = scanning.GateWarn
		d.Reason = fmt.Sprintf("%d medium severity finding(s) require review", len(b.medium))
	default:
		d.Status = scanning.GatePass
		d.Reason = PassReason
	}

	d.TopFindings = make([]scanning.Finding, 0, MaxTopFindings)
	for _, bucket := range [][]scanning.LocatedFinding{b.breakers, b.critical, b.high, b.medium} {
		for _, f := range bucket {
			if len(d.TopFindings) == MaxTopFindings {
				return d
			}
			d.TopFindings = append(d.TopFindings, f.Finding)
		}
	}
	return d
}

// Apply computes the decision for r and stores it on the report.
func Apply(r *scanning.Report) Decision {
	d := Compute(r)
	r.GateStatus = d.Status
	r.GateReason = d.Reason
	r.Checklist = d.Checklist
	r.TopFindings = d.TopFindings
	return d
}

func distinctRules(findings []scanning.LocatedFinding) []string {
	seen := make(map[string]struct{}, len(findings))
	var out []string
	for _, f := range findings {
		name := f.Rule()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
