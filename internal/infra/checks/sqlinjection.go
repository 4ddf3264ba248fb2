package checks

import (
	"context"
	"fmt"

	regexp "github.com/wasilibs/go-re2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/gate"
	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

type sqlPattern struct {
	re    *regexp.Regexp
	title string
}

var sqlPatterns = []sqlPattern{
	{
		re:    regexp.MustCompile(`(?i)["'\x60]\s*(?:SELECT|INSERT|UPDATE|DELETE)\b[^"'\x60]*["'\x60]\s*\+`),
		title: "SQL built by string concatenation",
	},
	{
		re:    regexp.MustCompile(`(?i)(?:execute|exec|query|raw)\s*\(\s*f["']`),
		title: "SQL built from an f-string",
	},
	{
		re:    regexp.MustCompile(`(?i)["']\s*(?:SELECT|INSERT|UPDATE|DELETE)\b[^"']*%s[^"']*["']\s*%`),
		title: "SQL built with % formatting",
	},
	{
		re:    regexp.MustCompile(`(?i)["']\s*(?:SELECT|INSERT|UPDATE|DELETE)\b[^"']*\{[^"']*["']\.format\(`),
		title: "SQL built with str.format",
	},
	{
		re:    regexp.MustCompile(`(?i)fmt\.Sprintf\(\s*["\x60]\s*(?:SELECT|INSERT|UPDATE|DELETE)\b`),
		title: "SQL built with fmt.Sprintf",
	},
}

// SQLInjectionCheck flags SQL statements assembled from untrusted strings.
type SQLInjectionCheck struct {
	maxFileBytes int64

	logger *logger.Logger
	tracer trace.Tracer
}

var _ appscanning.Check = (*SQLInjectionCheck)(nil)

// NewSQLInjectionCheck creates a SQLInjectionCheck.
func NewSQLInjectionCheck(maxFileBytes int64, log *logger.Logger, tracer trace.Tracer) *SQLInjectionCheck {
	return &SQLInjectionCheck{
		maxFileBytes: maxFileBytes,
		logger:       log.With("component", "sql_injection_check"),
		tracer:       tracer,
	}
}

// Execute implements appscanning.Check.
func (c *SQLInjectionCheck) Execute(ctx context.Context, env appscanning.Env) (scanning.CheckResult, error) {
	if env.WorkDir == "" {
		return scanning.CheckResult{Status: scanning.CheckStatusSkipped, Summary: "no work dir configured"}, nil
	}

	ctx, span := c.tracer.Start(ctx, "sql_injection_check.execute",
		trace.WithAttributes(attribute.String("work_dir", env.WorkDir)))
	defer span.End()

	var (
		findings []scanning.Finding
		files    int
	)
	err := walkSources(ctx, env.WorkDir, c.maxFileBytes, func(f sourceFile) error {
		if !isCode(f.Rel) {
			return nil
		}
		files++
		for i, line := range lines(f.Content) {
			for _, p := range sqlPatterns {
				if !p.re.MatchString(line) {
					continue
				}
				findings = append(findings, scanning.NewFinding(
					p.title,
					"A SQL statement is assembled from strings; untrusted input can alter the query.",
					scanning.SeverityHigh,
					scanning.WithRule(gate.RuleSQLInjectionRisk),
					scanning.WithLocation(fmt.Sprintf("%s:%d", f.Rel, i+1)),
					scanning.WithEvidence(snippet(line)),
					scanning.WithRecommendation("Use parameterized queries or prepared statements."),
				))
				break
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return scanning.CheckResult{}, fmt.Errorf("scanning %s: %w", env.WorkDir, err)
	}

	span.SetAttributes(attribute.Int("files", files), attribute.Int("findings", len(findings)))
	c.logger.Debug(ctx, "sql injection scan finished", "files", files, "findings", len(findings))
	return scanning.CheckResult{
		Findings: findings,
		Summary:  fmt.Sprintf("%d source file(s) scanned, %d risky statement(s)", files, len(findings)),
	}, nil
}
