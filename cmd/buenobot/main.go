// Command buenobot runs quality and security gate scans against a target
// service and its source tree.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/buenobot/internal/config"
	"github.com/ahrav/buenobot/pkg/common/logger"
	"github.com/ahrav/buenobot/pkg/common/otel"
)

var build = "develop"

// Process exit codes.
const (
	exitOK    = 0
	exitGate  = 1
	exitUsage = 2
)

// errUsage marks errors caused by bad arguments or configuration.
var errUsage = errors.New("usage error")

const usage = `usage: buenobot <command> [flags]

commands:
  scan              run a scan and print the gated report
  serve             serve the status API and launch scans on request
  history           list persisted scans, newest first
  cache invalidate  drop cached AI enrichments
  version           print the build version
`

func main() {
	_, _ = maxprocs.Set()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		code int
		err  error
	)
	switch cmd, rest := args[0], args[1:]; cmd {
	case "scan":
		code, err = runScan(ctx, rest, stdout, stderr)
	case "serve":
		code, err = runServe(ctx, rest, stderr)
	case "history":
		code, err = runHistory(ctx, rest, stdout, stderr)
	case "cache":
		code, err = runCache(ctx, rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, build)
		return exitOK
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}

	if err != nil {
		fmt.Fprintf(stderr, "buenobot: %v\n", err)
		if errors.Is(err, errUsage) {
			return exitUsage
		}
		return max(code, exitGate)
	}
	return code
}

// newLogger builds the process logger. Errors are mirrored to stderr as a
// JSON event so they stay visible when stdout carries a report.
func newLogger(cfg *config.Config, w, stderr io.Writer) *logger.Logger {
	events := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	hostname, _ := os.Hostname()
	metadata := map[string]string{
		"hostname":    hostname,
		"environment": cfg.Scan.Environment,
		"build":       build,
	}
	return logger.NewWithMetadata(w, logger.ParseLevel(cfg.Log.Level), cfg.Telemetry.ServiceName,
		otel.GetTraceID, events, metadata)
}

// initTelemetry starts the OpenTelemetry providers for cfg.
func initTelemetry(log *logger.Logger, cfg *config.Config) (otel.Providers, func(context.Context), error) {
	return otel.InitTelemetry(log, otel.Config{
		Enabled:          cfg.Telemetry.Enabled,
		ServiceName:      cfg.Telemetry.ServiceName,
		ExporterEndpoint: cfg.Telemetry.Endpoint,
		ExcludedRoutes:   map[string]struct{}{"/v1/health": {}},
		Probability:      cfg.Telemetry.Probability,
		InsecureExporter: cfg.Telemetry.Insecure,
		ResourceAttributes: map[string]string{
			"environment": cfg.Scan.Environment,
			"build":       build,
		},
	})
}
