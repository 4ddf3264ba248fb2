package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

func runHistory(ctx context.Context, args []string, stdout, stderr io.Writer) (int, error) {
	fs := pflag.NewFlagSet("history", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", 20, "maximum number of scans to list, 0 for all")
	asJSON := fs.Bool("json", false, "print entries as JSON")
	fs.String("reports-dir", ".buenobot/reports", "directory of persisted reports")

	cfg, err := loadConfig(ctx, fs, args, map[string]string{"reports-dir": "storage.reports_dir"})
	if err != nil {
		return exitUsage, err
	}
	if *limit < 0 {
		return exitUsage, fmt.Errorf("%w: --limit must not be negative", errUsage)
	}

	a, err := newApp(cfg, stderr, stderr)
	if err != nil {
		return exitGate, err
	}
	defer a.Close(context.WithoutCancel(ctx))

	entries, err := a.store.List(ctx, *limit)
	if err != nil {
		return exitGate, fmt.Errorf("listing reports: %w", err)
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return exitGate, err
		}
		return exitOK, nil
	}
	renderHistory(stdout, entries)
	return exitOK, nil
}
