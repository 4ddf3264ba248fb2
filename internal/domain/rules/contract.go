package rules

import (
	"net/http"
	"slices"
	"strings"

	"github.com/ahrav/buenobot/internal/domain/scanning"
)

// FilterMode is the comparison a filter validation applies.
type FilterMode string

const (
	FilterEquals   FilterMode = "equals"
	FilterGTE      FilterMode = "gte"
	FilterLTE      FilterMode = "lte"
	FilterContains FilterMode = "contains"
	// FilterIn requires every value to belong to the comma-separated set
	// named by the request parameter.
	FilterIn FilterMode = "in"
)

// FilterValidation declares that a request query parameter must be honored
// by the values found at FieldPath in the response.
type FilterValidation struct {
	Param     string            `json:"param"`
	FieldPath string            `json:"field_path"`
	Mode      FilterMode        `json:"mode"`
	Severity  scanning.Severity `json:"severity"`
}

// Rule converts the filter validation into the equivalent contract rule.
func (f FilterValidation) Rule() Rule {
	sev := f.Severity
	if sev == "" {
		sev = scanning.SeverityHigh
	}
	if f.Mode == FilterIn {
		return Rule{
			Type:      RuleSubsetOfParam,
			FieldPath: f.FieldPath,
			Params:    Params{"param": f.Param},
			Severity:  sev,
			Enabled:   true,
		}
	}
	mode := f.Mode
	if mode == "" {
		mode = FilterEquals
	}
	return Rule{
		Type:      RuleRespectsFilter,
		FieldPath: f.FieldPath,
		Params:    Params{"param": f.Param, "mode": string(mode)},
		Severity:  sev,
		Enabled:   true,
	}
}

// EndpointContract is the full set of expectations for one endpoint and
// method. Contracts are immutable configuration once loaded.
type EndpointContract struct {
	Name              string             `json:"name,omitempty"`
	Endpoint          string             `json:"endpoint"`
	Method            string             `json:"method"`
	Description       string             `json:"description,omitempty"`
	Rules             []Rule             `json:"rules"`
	ResponseCodes     []int              `json:"response_codes"`
	FilterValidations []FilterValidation `json:"filter_validations,omitempty"`
}

// Key identifies a contract as METHOD:endpoint.
func (c EndpointContract) Key() string { return ContractKey(c.Method, c.Endpoint) }

// ContractKey builds the registry key for a method and endpoint.
func ContractKey(method, endpoint string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		m = http.MethodGet
	}
	return m + ":" + strings.TrimSpace(endpoint)
}

// AcceptsStatus reports whether code is one of the declared response codes.
func (c EndpointContract) AcceptsStatus(code int) bool {
	if len(c.ResponseCodes) == 0 {
		return code == http.StatusOK
	}
	return slices.Contains(c.ResponseCodes, code)
}

// EnabledRules returns enabled rules followed by the rules derived from the
// filter validations, preserving declaration order.
func (c EndpointContract) EnabledRules() []Rule {
	out := make([]Rule, 0, len(c.Rules)+len(c.FilterValidations))
	for _, r := range c.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	for _, fv := range c.FilterValidations {
		out = append(out, fv.Rule())
	}
	return out
}
