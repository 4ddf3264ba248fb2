// Package rules defines declarative response contracts and the evaluator
// that checks a JSON document against them. Evaluation is pure: it performs
// no I/O and is safe to run concurrently for any number of rules.
package rules

import (
	"github.com/ahrav/buenobot/internal/domain/scanning"
)

// RuleType enumerates the assertions a ContractRule can make.
type RuleType string

const (
	// Range and date rules.
	RuleDateInRange   RuleType = "date_in_range"
	RuleNoFutureDates RuleType = "no_future_dates"
	RuleValueInRange  RuleType = "value_in_range"

	// Allow-list rules.
	RuleAllowedValues   RuleType = "allowed_values"
	RuleAllowedValuesIf RuleType = "allowed_values_if"

	// Null and shape rules.
	RuleNotNull       RuleType = "not_null"
	RuleFieldsPresent RuleType = "fields_present"
	RuleArrayNotEmpty RuleType = "array_not_empty"
	RuleUniqueValues  RuleType = "unique_values"

	// Numeric rules.
	RuleNoNegativeValues  RuleType = "no_negative_values"
	RuleSumEquals         RuleType = "sum_equals"
	RuleMonotonicSequence RuleType = "monotonic_sequence"

	// Filter compliance rules.
	RuleSubsetOfParam  RuleType = "subset_of_param"
	RuleRespectsFilter RuleType = "respects_filter"

	// Leakage rules.
	RuleNoCredentialsInOutput RuleType = "no_credentials_in_output"
)

func (t RuleType) String() string { return string(t) }

// Known reports whether t is one of the rule types this evaluator implements.
func (t RuleType) Known() bool {
	switch t {
	case RuleDateInRange, RuleNoFutureDates, RuleValueInRange,
		RuleAllowedValues, RuleAllowedValuesIf,
		RuleNotNull, RuleFieldsPresent, RuleArrayNotEmpty, RuleUniqueValues,
		RuleNoNegativeValues, RuleSumEquals, RuleMonotonicSequence,
		RuleSubsetOfParam, RuleRespectsFilter,
		RuleNoCredentialsInOutput:
		return true
	default:
		return false
	}
}

// Rule is a single declarative assertion against a response document.
type Rule struct {
	Type        RuleType          `json:"rule_type"`
	FieldPath   string            `json:"field_path"`
	Params      Params            `json:"params,omitempty"`
	Severity    scanning.Severity `json:"severity"`
	Enabled     bool              `json:"enabled"`
	Description string            `json:"description,omitempty"`
}

// RedactedMarker replaces sensitive values in violations.
const RedactedMarker = "[REDACTED]"

// Violation describes one failed rule instance.
type Violation struct {
	RuleType    RuleType          `json:"rule_type"`
	FieldPath   string            `json:"field_path"`
	Message     string            `json:"message"`
	ActualValue any               `json:"actual_value"`
	Expected    any               `json:"expected,omitempty"`
	Severity    scanning.Severity `json:"severity,omitempty"`
	Context     map[string]any    `json:"context,omitempty"`
}
