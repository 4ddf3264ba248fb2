package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/pflag"

	"github.com/ahrav/buenobot/internal/api"
	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/analysis"
	"github.com/ahrav/buenobot/internal/domain/scanning"
)

var serveBindings = map[string]string{
	"addr":          "server.addr",
	"env":           "scan.environment",
	"base-url":      "scan.base_url",
	"work-dir":      "scan.work_dir",
	"contracts-dir": "contracts.dir",
	"ai":            "ai.enabled",
}

func runServe(ctx context.Context, args []string, stderr io.Writer) (int, error) {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("addr", ":8080", "listen address of the status API")
	fs.String("env", "local", "default target environment")
	fs.String("base-url", "", "default base URL of the target API")
	fs.String("work-dir", ".", "default source tree to scan")
	fs.String("contracts-dir", "contracts", "directory of contract definitions")
	fs.Bool("ai", false, "enrich launched scans with an AI analysis")

	cfg, err := loadConfig(ctx, fs, args, serveBindings)
	if err != nil {
		return exitUsage, err
	}

	a, err := newApp(cfg, os.Stdout, stderr)
	if err != nil {
		return exitGate, err
	}
	defer a.Close(context.WithoutCancel(ctx))

	a.log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// Progress from API launched scans goes to the process log.
	if err := a.broker.SubscribeProgress(ctx, func(p scanning.Progress) error {
		a.log.Info(ctx, "scan progress",
			"scan_id", p.ScanID, "phase", string(p.Phase), "check_id", p.CheckID,
			"index", p.Index, "total", p.Total, "status", p.Status)
		return nil
	}); err != nil {
		return exitGate, err
	}

	metrics, err := api.NewAPIMetrics(a.providers.Meter)
	if err != nil {
		return exitGate, fmt.Errorf("creating api metrics: %w", err)
	}

	defaults := appscanning.ScanRequest{
		Environment: cfg.Scan.Environment,
		BaseURL:     cfg.Scan.BaseURL,
		WorkDir:     cfg.Scan.WorkDir,
		Commit:      cfg.Scan.Commit,
	}
	if cfg.AI.Enabled {
		defaults.AI = &appscanning.EnrichOptions{Mode: analysis.ParseMode(cfg.AI.Mode)}
	}

	srv := api.NewServer(
		api.Config{Addr: cfg.Server.Addr, Build: build, Defaults: defaults},
		a.runner,
		a.store,
		metrics,
		a.log,
		a.tracer,
	)
	if err := srv.Start(ctx); err != nil {
		return exitGate, fmt.Errorf("serving: %w", err)
	}
	return exitOK, nil
}
