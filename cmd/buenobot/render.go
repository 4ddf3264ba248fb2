package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/internal/domain/gate"
	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/internal/infra/storage/reports"
)

func renderReport(w io.Writer, r *scanning.Report) {
	m := r.Metadata
	fmt.Fprintf(w, "Scan %s (%s profile, %s)\n", m.ScanID, m.Profile, m.Environment)
	if m.Commit != "" {
		fmt.Fprintf(w, "Commit: %s\n", m.Commit)
	}
	fmt.Fprintf(w, "Status: %s in %dms\n", r.Status, r.Counters.DurationMS)
	fmt.Fprintf(w, "Gate:   %s  %s\n\n", r.GateStatus, r.GateReason)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK\tCATEGORY\tSTATUS\tFINDINGS\tSUMMARY")
	for _, res := range r.CheckResults() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", res.CheckID, res.Category, res.Status, len(res.Findings), res.Summary)
	}
	_ = tw.Flush()

	fmt.Fprintln(w, "\nChecklist:")
	for _, key := range gate.ChecklistKeys() {
		mark := "x"
		if !r.Checklist[key] {
			mark = " "
		}
		fmt.Fprintf(w, "  [%s] %s\n", mark, key)
	}

	if len(r.TopFindings) > 0 {
		fmt.Fprintln(w, "\nTop findings:")
		for _, f := range r.TopFindings {
			line := fmt.Sprintf("  %-8s %s", strings.ToUpper(string(f.Severity)), f.Title)
			if f.Location != "" {
				line += " (" + f.Location + ")"
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "  %s %s: %s\n", rec.Priority, rec.Title, rec.Action)
		}
	}

	if r.AI != nil {
		renderAI(w, r.AI)
	}
}

func renderAI(w io.Writer, ai *analysis.EnrichedReport) {
	fmt.Fprintf(w, "\nAI analysis: %s", ai.Status)
	if ai.EngineUsed != "" {
		fmt.Fprintf(w, " via %s", ai.EngineUsed)
	}
	if ai.Cached {
		fmt.Fprint(w, " (cached)")
	}
	if ai.FallbackUsed {
		fmt.Fprint(w, " (fallback)")
	}
	fmt.Fprintln(w)

	if ai.Status != analysis.StatusCompleted {
		if ai.Error != "" {
			fmt.Fprintf(w, "  %s\n", ai.Error)
		}
		return
	}
	fmt.Fprintf(w, "  Risk %d/100, confidence %.2f\n", ai.RiskScore, ai.Confidence)
	if ai.Summary != "" {
		fmt.Fprintf(w, "  %s\n", ai.Summary)
	}
	for _, rc := range ai.RootCauses {
		fmt.Fprintf(w, "  - %s [%s]\n", rc.Cause, strings.Join(rc.EvidenceIDs, ", "))
	}
	for _, rec := range ai.Recommendations {
		fmt.Fprintf(w, "  * %s %s\n", rec.Priority, rec.Title)
	}
}

func renderHistory(w io.Writer, entries []reports.IndexEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCAN\tSTARTED\tPROFILE\tENV\tSTATUS\tGATE\tDURATION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%dms\n",
			e.ScanID, e.StartedAt.Format("2006-01-02 15:04:05"), e.Profile, e.Environment,
			e.Status, e.GateStatus, e.DurationMS)
	}
	_ = tw.Flush()
}
