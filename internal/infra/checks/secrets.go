package checks

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	regexp "github.com/wasilibs/go-re2"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/gate"
	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

// queryCredentialRe matches URLs carrying credentials in their query string.
var queryCredentialRe = regexp.MustCompile(
	`(?i)https?://[^\s"'<>]+[?&](?:password|passwd|pwd|token|access_token|api_key|apikey|secret|client_secret)=[^\s&"'<>]+`)

// queryCredentialValueRe captures the credential parameter so its value can
// be replaced in evidence.
var queryCredentialValueRe = regexp.MustCompile(
	`(?i)([?&](?:password|passwd|pwd|token|access_token|api_key|apikey|secret|client_secret)=)[^\s&"'<>]+`)

// SecretsCheck looks for hardcoded credentials in the work dir using the
// gitleaks ruleset, plus URLs that pass credentials as query parameters.
// A detector accumulates findings, so each Execute builds its own from the
// shared translated ruleset.
type SecretsCheck struct {
	cfg          config.Config
	maxFileBytes int64

	logger *logger.Logger
	tracer trace.Tracer
}

var _ appscanning.Check = (*SecretsCheck)(nil)

// NewSecretsCheck translates the embedded gitleaks config.
func NewSecretsCheck(maxFileBytes int64, log *logger.Logger, tracer trace.Tracer) (*SecretsCheck, error) {
	cfg, err := loadGitleaksConfig()
	if err != nil {
		return nil, err
	}
	return &SecretsCheck{
		cfg:          cfg,
		maxFileBytes: maxFileBytes,
		logger:       log.With("component", "secrets_check"),
		tracer:       tracer,
	}, nil
}

// loadGitleaksConfig reads the embedded default gitleaks ruleset.
func loadGitleaksConfig() (config.Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewBufferString(config.DefaultConfig)); err != nil {
		return config.Config{}, fmt.Errorf("failed to read embedded config: %w", err)
	}

	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return config.Config{}, fmt.Errorf("failed to unmarshal embedded config: %w", err)
	}

	cfg, err := vc.Translate()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to translate ViperConfig to Config: %w", err)
	}
	return cfg, nil
}

// Execute implements appscanning.Check.
func (c *SecretsCheck) Execute(ctx context.Context, env appscanning.Env) (scanning.CheckResult, error) {
	if env.WorkDir == "" {
		return scanning.CheckResult{Status: scanning.CheckStatusSkipped, Summary: "no work dir configured"}, nil
	}

	ctx, span := c.tracer.Start(ctx, "secrets_check.execute",
		trace.WithAttributes(
			attribute.String("work_dir", env.WorkDir),
			attribute.Int("num_rules", len(c.cfg.Rules)),
		))
	defer span.End()

	detector := detect.NewDetector(c.cfg)

	var (
		findings []scanning.Finding
		files    int
	)
	err := walkSources(ctx, env.WorkDir, c.maxFileBytes, func(f sourceFile) error {
		files++
		detected, err := detector.DetectReader(bytes.NewReader(f.Content), 32)
		if err != nil {
			c.logger.Warn(ctx, "gitleaks detection failed", "file", f.Rel, "error", err)
		}
		for _, d := range detected {
			findings = append(findings, scanning.NewFinding(
				fmt.Sprintf("Hardcoded secret (%s)", d.RuleID),
				d.Description,
				scanning.SeverityCritical,
				scanning.WithRule(gate.RuleHardcodedCredentials),
				scanning.WithLocation(fmt.Sprintf("%s:%d", f.Rel, d.StartLine)),
				scanning.WithEvidence(redactSecret(d.Match, d.Secret)),
				scanning.WithRecommendation("Move the secret to a secret manager or environment variable and rotate it."),
			))
		}

		for i, line := range lines(f.Content) {
			if !queryCredentialRe.MatchString(line) {
				continue
			}
			findings = append(findings, scanning.NewFinding(
				"Credentials passed in URL query parameters",
				"A URL sends a credential as a query parameter, where it is logged by proxies and servers.",
				scanning.SeverityHigh,
				scanning.WithRule(gate.RuleCredentialsInQuery),
				scanning.WithLocation(fmt.Sprintf("%s:%d", f.Rel, i+1)),
				scanning.WithEvidence(redactQueryCredentials(line)),
				scanning.WithRecommendation("Send credentials in an Authorization header or request body."),
			))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "walking work dir failed")
		return scanning.CheckResult{}, fmt.Errorf("scanning %s: %w", env.WorkDir, err)
	}

	span.SetAttributes(attribute.Int("files", files), attribute.Int("findings", len(findings)))
	return scanning.CheckResult{
		Findings: findings,
		Summary:  fmt.Sprintf("%d file(s) scanned, %d potential secret(s)", files, len(findings)),
	}, nil
}

// redactSecret keeps the surrounding match for context but hides the secret.
func redactSecret(match, secret string) string {
	if secret == "" {
		return snippet(match)
	}
	return snippet(strings.ReplaceAll(match, secret, "[REDACTED]"))
}

// redactQueryCredentials hides every credential query value in line.
func redactQueryCredentials(line string) string {
	return snippet(queryCredentialValueRe.ReplaceAllString(line, "${1}[REDACTED]"))
}
