package checks

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/buenobot/internal/app/contracts"
	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/rules"
	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

// RuleEndpointError marks an endpoint that could not be validated.
const RuleEndpointError = "endpoint_error"

var ruleRecommendations = map[rules.RuleType]string{
	rules.RuleRespectsFilter:        "Apply the request filter in the endpoint query instead of returning unfiltered rows.",
	rules.RuleSubsetOfParam:         "Restrict results to the values requested by the caller.",
	rules.RuleNoCredentialsInOutput: "Remove credential fields from the response serializer.",
	rules.RuleNotNull:               "Populate the field or document it as optional in the contract.",
	rules.RuleUniqueValues:          "Deduplicate rows before returning them.",
	rules.RuleDateInRange:           "Check date arithmetic and timezone handling for this field.",
	rules.RuleNoFutureDates:         "Reject or correct records dated in the future.",
	rules.RuleSumEquals:             "Recompute the aggregate from its components.",
}

// ContractCheck validates every loaded contract against the target.
type ContractCheck struct {
	registry    *contracts.Registry
	validator   *contracts.Validator
	concurrency int
	params      map[string]map[string]any

	logger *logger.Logger
	tracer trace.Tracer
}

var _ appscanning.Check = (*ContractCheck)(nil)

// NewContractCheck creates a ContractCheck. params maps a contract key
// ("METHOD:/path") to the request parameters used to call it.
func NewContractCheck(
	registry *contracts.Registry,
	validator *contracts.Validator,
	concurrency int,
	params map[string]map[string]any,
	log *logger.Logger,
	tracer trace.Tracer,
) *ContractCheck {
	return &ContractCheck{
		registry:    registry,
		validator:   validator,
		concurrency: cmp.Or(concurrency, 4),
		params:      params,
		logger:      log.With("component", "contract_check"),
		tracer:      tracer,
	}
}

// Execute implements appscanning.Check.
func (c *ContractCheck) Execute(ctx context.Context, env appscanning.Env) (scanning.CheckResult, error) {
	ctx, span := c.tracer.Start(ctx, "contract_check.execute",
		trace.WithAttributes(attribute.String("contracts_dir", c.registry.Dir())))
	defer span.End()

	if env.BaseURL == "" {
		return scanning.CheckResult{Status: scanning.CheckStatusSkipped, Summary: "no base URL configured"}, nil
	}
	if _, err := c.registry.Load(ctx, false); err != nil {
		return scanning.CheckResult{}, fmt.Errorf("loading contracts: %w", err)
	}
	all := c.registry.All()
	if len(all) == 0 {
		return scanning.CheckResult{Status: scanning.CheckStatusSkipped, Summary: "no contracts defined"}, nil
	}

	results := c.validator.ForBaseURL(env.BaseURL).ValidateAll(ctx, all, c.paramsFor, c.concurrency)

	var (
		findings   []scanning.Finding
		violations int
		errored    int
	)
	for _, res := range results {
		target := res.Method + " " + res.Endpoint
		if res.Error != "" {
			errored++
			findings = append(findings, scanning.NewFinding(
				fmt.Sprintf("%s could not be validated", target),
				res.Error,
				scanning.SeverityMedium,
				scanning.WithRule(RuleEndpointError),
				scanning.WithLocation(target),
			))
			continue
		}
		for _, v := range res.Violations {
			violations++
			findings = append(findings, violationFinding(target, v))
		}
	}

	span.SetAttributes(
		attribute.Int("endpoints", len(results)),
		attribute.Int("violations", violations),
		attribute.Int("endpoint_errors", errored),
	)
	c.logger.Info(ctx, "contracts validated",
		"endpoints", len(results), "violations", violations, "endpoint_errors", errored)

	return scanning.CheckResult{
		Findings: findings,
		Summary: fmt.Sprintf("%d endpoint(s) validated, %d violation(s), %d endpoint error(s)",
			len(results), violations, errored),
	}, nil
}

func (c *ContractCheck) paramsFor(contract rules.EndpointContract) map[string]any {
	return c.params[contract.Key()]
}

func violationFinding(target string, v rules.Violation) scanning.Finding {
	opts := []scanning.FindingOption{
		scanning.WithRule(string(v.RuleType)),
		scanning.WithLocation(target + " " + v.FieldPath),
	}
	if v.ActualValue != nil {
		if b, err := json.Marshal(v.ActualValue); err == nil {
			opts = append(opts, scanning.WithEvidence(snippet(string(b))))
		}
	}
	if rec, ok := ruleRecommendations[v.RuleType]; ok {
		opts = append(opts, scanning.WithRecommendation(rec))
	}
	description := v.Message
	if v.Expected != nil {
		description = fmt.Sprintf("%s (expected %v)", v.Message, v.Expected)
	}
	return scanning.NewFinding(v.Message, description, cmp.Or(v.Severity, scanning.SeverityMedium), opts...)
}
