package gate

import "github.com/ahrav/buenobot/internal/domain/scanning"

// Rule names whose presence forces a FAIL regardless of declared severity.
const (
	RuleCredentialsInQuery   = "credentials_in_query_params"
	RuleCredentialsInOutput  = "no_credentials_in_output"
	RuleHardcodedCredentials = "hardcoded_credentials"
	RuleRespectsFilter       = "respects_filter"
	RuleSubsetOfParam        = "subset_of_param"
	RuleFilterNotRespected   = "filter_not_respected"
	RuleSQLInjectionRisk     = "sql_injection_risk"
)

var gateBreakers = map[string]struct{}{
	RuleCredentialsInQuery:   {},
	RuleCredentialsInOutput:  {},
	RuleHardcodedCredentials: {},
	RuleRespectsFilter:       {},
	RuleSubsetOfParam:        {},
	RuleFilterNotRespected:   {},
	RuleSQLInjectionRisk:     {},
}

// IsGateBreaker reports whether rule is in the gate-breaker set.
func IsGateBreaker(rule string) bool {
	_, ok := gateBreakers[rule]
	return ok
}

// IsGateBreakerFinding reports whether f was produced by a gate-breaker rule.
func IsGateBreakerFinding(f scanning.Finding) bool { return IsGateBreaker(f.Rule()) }

// GateBreakers returns the gate-breaker rule names in a stable order.
func GateBreakers() []string {
	return []string{
		RuleCredentialsInQuery,
		RuleCredentialsInOutput,
		RuleHardcodedCredentials,
		RuleRespectsFilter,
		RuleSubsetOfParam,
		RuleFilterNotRespected,
		RuleSQLInjectionRisk,
	}
}
