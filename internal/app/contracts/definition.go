package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/buenobot/internal/domain/rules"
	"github.com/ahrav/buenobot/internal/domain/scanning"
)

// ruleDefinition is the on-disk shape of a contract rule.
type ruleDefinition struct {
	RuleType    string         `json:"rule_type" validate:"required"`
	FieldPath   string         `json:"field_path" validate:"required,startswith=$"`
	Params      map[string]any `json:"params"`
	Severity    string         `json:"severity" validate:"omitempty,oneof=critical high medium low info"`
	Enabled     *bool          `json:"enabled"`
	Description string         `json:"description"`
}

type filterDefinition struct {
	Param     string `json:"param" validate:"required"`
	FieldPath string `json:"field_path" validate:"required,startswith=$"`
	Mode      string `json:"mode" validate:"omitempty,oneof=equals gte lte contains in"`
	Severity  string `json:"severity" validate:"omitempty,oneof=critical high medium low info"`
}

type contractDefinition struct {
	Name              string             `json:"name"`
	Endpoint          string             `json:"endpoint" validate:"required"`
	Method            string             `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Description       string             `json:"description"`
	Rules             []ruleDefinition   `json:"rules" validate:"dive"`
	ResponseCodes     []int              `json:"response_codes" validate:"dive,min=100,max=599"`
	FilterValidations []filterDefinition `json:"filter_validations" validate:"dive"`
}

// defaultRuleSeverity applies to rules that do not declare a severity.
const defaultRuleSeverity = scanning.SeverityMedium

// isContractFile reports whether path has an extension the registry decodes.
func isContractFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".jsonc":
		return true
	default:
		return false
	}
}

// decodeDefinitions decodes a contract file holding a single contract, a
// list of contracts or an object with a "contracts" list. YAML documents
// are normalized to JSON first so both formats share one decoding path.
func decodeDefinitions(name string, data []byte) ([]contractDefinition, error) {
	var doc []byte
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("normalizing yaml: %w", err)
		}
		doc = b
	default:
		doc = jsonc.ToJSON(data)
	}

	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 || bytes.Equal(doc, []byte("null")) {
		return nil, nil
	}

	switch doc[0] {
	case '[':
		var defs []contractDefinition
		if err := json.Unmarshal(doc, &defs); err != nil {
			return nil, fmt.Errorf("parsing contract list: %w", err)
		}
		return defs, nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(doc, &probe); err != nil {
			return nil, fmt.Errorf("parsing contract: %w", err)
		}
		if list, ok := probe["contracts"]; ok {
			var defs []contractDefinition
			if err := json.Unmarshal(list, &defs); err != nil {
				return nil, fmt.Errorf("parsing contracts: %w", err)
			}
			return defs, nil
		}
		var def contractDefinition
		if err := json.Unmarshal(doc, &def); err != nil {
			return nil, fmt.Errorf("parsing contract: %w", err)
		}
		return []contractDefinition{def}, nil
	default:
		return nil, fmt.Errorf("unexpected document root %q", doc[0])
	}
}

// toContract validates def and converts it to the domain type, applying
// defaults for method, response codes, severity and enablement.
func toContract(v *validator.Validate, def contractDefinition) (rules.EndpointContract, error) {
	def.Method = strings.ToUpper(strings.TrimSpace(def.Method))
	if def.Method == "" {
		def.Method = http.MethodGet
	}
	if err := v.Struct(def); err != nil {
		return rules.EndpointContract{}, err
	}

	c := rules.EndpointContract{
		Name:          def.Name,
		Endpoint:      strings.TrimSpace(def.Endpoint),
		Method:        def.Method,
		Description:   def.Description,
		ResponseCodes: def.ResponseCodes,
	}
	if len(c.ResponseCodes) == 0 {
		c.ResponseCodes = []int{http.StatusOK}
	}

	for _, rd := range def.Rules {
		enabled := true
		if rd.Enabled != nil {
			enabled = *rd.Enabled
		}
		sev := defaultRuleSeverity
		if rd.Severity != "" {
			sev = scanning.ParseSeverity(rd.Severity)
		}
		c.Rules = append(c.Rules, rules.Rule{
			Type:        rules.RuleType(rd.RuleType),
			FieldPath:   rd.FieldPath,
			Params:      rules.Params(rd.Params),
			Severity:    sev,
			Enabled:     enabled,
			Description: rd.Description,
		})
	}

	for _, fd := range def.FilterValidations {
		fv := rules.FilterValidation{
			Param:     fd.Param,
			FieldPath: fd.FieldPath,
			Mode:      rules.FilterMode(fd.Mode),
		}
		if fd.Severity != "" {
			fv.Severity = scanning.ParseSeverity(fd.Severity)
		}
		c.FilterValidations = append(c.FilterValidations, fv)
	}
	return c, nil
}
