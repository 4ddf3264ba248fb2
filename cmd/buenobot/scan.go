package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/internal/domain/scanning"
)

var scanBindings = map[string]string{
	"profile":       "scan.profile",
	"env":           "scan.environment",
	"base-url":      "scan.base_url",
	"work-dir":      "scan.work_dir",
	"commit":        "scan.commit",
	"trigger":       "scan.trigger",
	"contracts-dir": "contracts.dir",
	"ai":            "ai.enabled",
	"ai-mode":       "ai.mode",
}

func runScan(ctx context.Context, args []string, stdout, stderr io.Writer) (int, error) {
	fs := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("profile", "quick", "check profile: quick or full")
	fs.String("env", "local", "name of the target environment")
	fs.String("base-url", "", "base URL of the target API")
	fs.String("work-dir", ".", "source tree to scan")
	fs.String("commit", "", "commit identifier recorded in the report")
	fs.String("trigger", "manual", "what started the scan")
	fs.String("contracts-dir", "contracts", "directory of contract definitions")
	fs.Bool("ai", false, "enrich the report with an AI analysis")
	fs.String("ai-mode", "standard", "analysis depth: quick, standard or deep")
	aiEngine := fs.String("ai-engine", "", "force a specific AI engine")
	failOnWarn := fs.Bool("fail-on-warn", false, "exit non-zero when the gate is WARN")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	quiet := fs.Bool("quiet", false, "do not print progress")

	cfg, err := loadConfig(ctx, fs, args, scanBindings)
	if err != nil {
		return exitUsage, err
	}

	profile, err := appscanning.ParseProfile(cfg.Scan.Profile)
	if err != nil {
		return exitUsage, fmt.Errorf("%w: %v", errUsage, err)
	}

	a, err := newApp(cfg, stderr, stderr)
	if err != nil {
		return exitGate, err
	}
	defer a.Close(context.WithoutCancel(ctx))

	if !*quiet {
		subCtx, unsubscribe := context.WithCancel(ctx)
		defer unsubscribe()
		if err := a.broker.SubscribeProgress(subCtx, func(p scanning.Progress) error {
			fmt.Fprintln(stderr, progressLine(p))
			return nil
		}); err != nil {
			return exitGate, err
		}
	}

	req := appscanning.ScanRequest{
		Profile:     profile,
		Environment: cfg.Scan.Environment,
		Trigger:     cfg.Scan.Trigger,
		Commit:      cfg.Scan.Commit,
		BaseURL:     cfg.Scan.BaseURL,
		WorkDir:     cfg.Scan.WorkDir,
	}
	if cfg.AI.Enabled {
		req.AI = &appscanning.EnrichOptions{
			Mode:        analysis.ParseMode(cfg.AI.Mode),
			ForceEngine: *aiEngine,
		}
	}

	rep, runErr := a.runner.Run(ctx, req)
	if rep.Metadata.ScanID == "" {
		return exitGate, runErr
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(&rep); err != nil {
			return exitGate, fmt.Errorf("encoding report: %w", err)
		}
	} else {
		renderReport(stdout, &rep)
	}

	if runErr != nil {
		return exitGate, runErr
	}
	return exitCode(&rep, *failOnWarn), nil
}

// exitCode maps a finished report to the process exit status.
func exitCode(r *scanning.Report, failOnWarn bool) int {
	if r.Status != scanning.ReportStatusDone {
		return exitGate
	}
	switch r.GateStatus {
	case scanning.GatePass:
		return exitOK
	case scanning.GateWarn:
		if failOnWarn {
			return exitGate
		}
		return exitOK
	default:
		return exitGate
	}
}

func progressLine(p scanning.Progress) string {
	switch p.Phase {
	case scanning.PhaseScanStarted:
		return fmt.Sprintf("scan %s started: %d check(s)", p.ScanID, p.Total)
	case scanning.PhaseCheckStarted:
		return fmt.Sprintf("[%d/%d] %s ...", p.Index+1, p.Total, p.CheckID)
	case scanning.PhaseCheckFinished:
		return fmt.Sprintf("[%d/%d] %s %s", p.Index, p.Total, p.CheckID, p.Status)
	case scanning.PhaseScanFinished:
		return fmt.Sprintf("scan %s finished: %s", p.ScanID, p.Status)
	default:
		return fmt.Sprintf("scan %s: %s", p.ScanID, p.Phase)
	}
}
