package checks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

// RuleAPIUnavailable marks a target that failed its health probe.
const RuleAPIUnavailable = "api_unavailable"

// HealthCheck probes the target's health endpoint.
type HealthCheck struct {
	path   string
	client *http.Client

	logger *logger.Logger
	tracer trace.Tracer
}

var _ appscanning.Check = (*HealthCheck)(nil)

// NewHealthCheck creates a HealthCheck for path, "/health" when empty.
func NewHealthCheck(path string, client *http.Client, log *logger.Logger, tracer trace.Tracer) *HealthCheck {
	if path == "" {
		path = "/health"
	}
	return &HealthCheck{
		path:   path,
		client: client,
		logger: log.With("component", "api_health_check"),
		tracer: tracer,
	}
}

// Execute implements appscanning.Check.
func (c *HealthCheck) Execute(ctx context.Context, env appscanning.Env) (scanning.CheckResult, error) {
	if env.BaseURL == "" {
		return scanning.CheckResult{
			Status:  scanning.CheckStatusSkipped,
			Summary: "no base URL configured",
		}, nil
	}

	target := strings.TrimRight(env.BaseURL, "/") + "/" + strings.TrimLeft(c.path, "/")
	ctx, span := c.tracer.Start(ctx, "api_health_check.execute",
		trace.WithAttributes(attribute.String("url", target)))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return scanning.CheckResult{}, fmt.Errorf("building health request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		return unavailable(target, fmt.Sprintf("request failed: %v", err)), nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return unavailable(target, fmt.Sprintf("returned status %d", resp.StatusCode)), nil
	}

	c.logger.Debug(ctx, "target healthy", "url", target, "latency_ms", elapsed.Milliseconds())
	return scanning.CheckResult{
		Status:  scanning.CheckStatusPassed,
		Summary: fmt.Sprintf("GET %s returned %d in %dms", c.path, resp.StatusCode, elapsed.Milliseconds()),
	}, nil
}

func unavailable(target, detail string) scanning.CheckResult {
	f := scanning.NewFinding(
		"API health endpoint unavailable",
		fmt.Sprintf("GET %s %s", target, detail),
		scanning.SeverityHigh,
		scanning.WithRule(RuleAPIUnavailable),
		scanning.WithLocation(target),
		scanning.WithRecommendation("Verify the service is deployed and its health endpoint responds with 2xx."),
	)
	return scanning.CheckResult{
		Status:   scanning.CheckStatusFailed,
		Findings: []scanning.Finding{f},
		Summary:  "health probe " + detail,
	}
}
