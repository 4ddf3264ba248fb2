package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/ahrav/buenobot/internal/infra/storage/cache"
)

func runCache(ctx context.Context, args []string, stdout, stderr io.Writer) (int, error) {
	if len(args) == 0 || args[0] != "invalidate" {
		return exitUsage, fmt.Errorf("%w: expected \"cache invalidate\"", errUsage)
	}

	fs := pflag.NewFlagSet("cache invalidate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	commit := fs.String("commit", "", "only drop entries for this commit")
	hash := fs.String("evidence-hash", "", "only drop entries for this evidence hash")
	fs.String("cache-dir", ".buenobot/ai_cache", "directory of cached AI enrichments")

	cfg, err := loadConfig(ctx, fs, args[1:], map[string]string{"cache-dir": "ai.cache_dir"})
	if err != nil {
		return exitUsage, err
	}

	log := newLogger(cfg, stderr, stderr)
	providers, shutdown, err := initTelemetry(log, cfg)
	if err != nil {
		return exitGate, err
	}
	defer shutdown(context.WithoutCancel(ctx))

	c, err := cache.New(cfg.AI.CacheDir, cfg.AI.CacheTTL, log, providers.Tracer.Tracer("buenobot"))
	if err != nil {
		return exitGate, fmt.Errorf("opening ai cache: %w", err)
	}

	n, err := c.Invalidate(ctx, *commit, *hash)
	if err != nil {
		return exitGate, fmt.Errorf("invalidating cache: %w", err)
	}
	fmt.Fprintf(stdout, "removed %d cache entr%s\n", n, map[bool]string{true: "y", false: "ies"}[n == 1])
	return exitOK, nil
}
