package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

func newTestEvaluator() *Evaluator {
	fixed := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	return NewEvaluator(logger.Noop(), WithClock(func() time.Time { return fixed }))
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		rule           Rule
		doc            string
		params         map[string]any
		wantPassed     bool
		wantViolations int
	}{
		{
			name:       "date in range with fixed bounds",
			rule:       Rule{Type: RuleDateInRange, FieldPath: "$[*].fecha", Params: Params{"min_date": "2024-01-01", "max_date": "2024-12-31"}},
			doc:        `[{"fecha": "2024-02-01"}, {"fecha": "2024-11-30T10:00:00Z"}]`,
			wantPassed: true,
		},
		{
			name:           "date in range with day offsets",
			rule:           Rule{Type: RuleDateInRange, FieldPath: "$[*].fecha", Params: Params{"min_days_ago": 30, "max_days_ahead": 0}},
			doc:            `[{"fecha": "2024-05-01"}, {"fecha": "2024-06-10"}, {"fecha": "2024-06-16"}]`,
			wantViolations: 2,
		},
		{
			name:           "date in range rejects unparseable dates",
			rule:           Rule{Type: RuleDateInRange, FieldPath: "$.fecha", Params: Params{"min_date": "2024-01-01"}},
			doc:            `{"fecha": "yesterday"}`,
			wantViolations: 1,
		},
		{
			name:           "no future dates",
			rule:           Rule{Type: RuleNoFutureDates, FieldPath: "$[*]"},
			doc:            `["2024-06-15", "2024-06-15T23:00:00Z", "2024-06-16"]`,
			wantViolations: 1,
		},
		{
			name:       "no future dates with tolerance",
			rule:       Rule{Type: RuleNoFutureDates, FieldPath: "$[*]", Params: Params{"tolerance_days": 1}},
			doc:        `["2024-06-16"]`,
			wantPassed: true,
		},
		{
			name:           "value in range",
			rule:           Rule{Type: RuleValueInRange, FieldPath: "$[*].pct", Params: Params{"min": 0, "max": 100}},
			doc:            `[{"pct": 0}, {"pct": 100}, {"pct": 101}, {"pct": -1}]`,
			wantViolations: 2,
		},
		{
			name:           "allowed values",
			rule:           Rule{Type: RuleAllowedValues, FieldPath: "$[*].estado", Params: Params{"values": []any{"activo", "inactivo"}}},
			doc:            `[{"estado": "activo"}, {"estado": "borrado"}, {"estado": null}]`,
			wantViolations: 1,
		},
		{
			name:       "allowed values case insensitive",
			rule:       Rule{Type: RuleAllowedValues, FieldPath: "$[*]", Params: Params{"values": "A,B", "case_insensitive": true}},
			doc:        `["a", "B"]`,
			wantPassed: true,
		},
		{
			name: "allowed values if condition holds",
			rule: Rule{Type: RuleAllowedValuesIf, FieldPath: "$[*].tipo", Params: Params{
				"if_param": "modo", "if_value": "estricto", "values": []any{"x"},
			}},
			doc:            `[{"tipo": "x"}, {"tipo": "y"}]`,
			params:         map[string]any{"modo": "estricto"},
			wantViolations: 1,
		},
		{
			name: "allowed values if condition absent",
			rule: Rule{Type: RuleAllowedValuesIf, FieldPath: "$[*].tipo", Params: Params{
				"if_param": "modo", "if_value": "estricto", "values": []any{"x"},
			}},
			doc:        `[{"tipo": "y"}]`,
			params:     map[string]any{"modo": "laxo"},
			wantPassed: true,
		},
		{
			name:           "not null",
			rule:           Rule{Type: RuleNotNull, FieldPath: "$[*].id"},
			doc:            `[{"id": 1}, {"id": null}]`,
			wantViolations: 1,
		},
		{
			name:           "not null missing concrete field",
			rule:           Rule{Type: RuleNotNull, FieldPath: "$.id"},
			doc:            `{}`,
			wantViolations: 1,
		},
		{
			name:           "fields present",
			rule:           Rule{Type: RuleFieldsPresent, FieldPath: "$[*]", Params: Params{"fields": []any{"id", "name"}}},
			doc:            `[{"id": 1, "name": "a"}, {"id": 2}]`,
			wantViolations: 1,
		},
		{
			name:           "array not empty",
			rule:           Rule{Type: RuleArrayNotEmpty, FieldPath: "$.items"},
			doc:            `{"items": []}`,
			wantViolations: 1,
		},
		{
			name:           "array not empty missing",
			rule:           Rule{Type: RuleArrayNotEmpty, FieldPath: "$.items"},
			doc:            `{}`,
			wantViolations: 1,
		},
		{
			name:           "unique values",
			rule:           Rule{Type: RuleUniqueValues, FieldPath: "$[*].id"},
			doc:            `[{"id": 1}, {"id": 2}, {"id": 1}, {"id": 1}]`,
			wantViolations: 2,
		},
		{
			name:           "no negative values",
			rule:           Rule{Type: RuleNoNegativeValues, FieldPath: "$[*]"},
			doc:            `[0, 1, -0.5]`,
			wantViolations: 1,
		},
		{
			name:           "no negative values without zero",
			rule:           Rule{Type: RuleNoNegativeValues, FieldPath: "$[*]", Params: Params{"allow_zero": false}},
			doc:            `[0, 1]`,
			wantViolations: 1,
		},
		{
			name:       "sum equals expected path",
			rule:       Rule{Type: RuleSumEquals, FieldPath: "$.lines[*].amount", Params: Params{"expected_path": "$.total"}},
			doc:        `{"lines": [{"amount": 10.005}, {"amount": 5}], "total": 15}`,
			wantPassed: true,
		},
		{
			name:           "sum equals mismatch",
			rule:           Rule{Type: RuleSumEquals, FieldPath: "$.lines[*].amount", Params: Params{"expected": 20}},
			doc:            `{"lines": [{"amount": 10}, {"amount": 5}]}`,
			wantViolations: 1,
		},
		{
			name:           "sum equals without expectation is an evaluation error",
			rule:           Rule{Type: RuleSumEquals, FieldPath: "$.lines[*].amount"},
			doc:            `{"lines": []}`,
			wantViolations: 1,
		},
		{
			name:       "monotonic increasing dates",
			rule:       Rule{Type: RuleMonotonicSequence, FieldPath: "$[*].fecha"},
			doc:        `[{"fecha": "2024-01-01"}, {"fecha": "2024-01-02"}, {"fecha": "2024-01-03"}]`,
			wantPassed: true,
		},
		{
			name:           "monotonic rejects equal neighbours by default",
			rule:           Rule{Type: RuleMonotonicSequence, FieldPath: "$[*]"},
			doc:            `[1, 2, 2, 3]`,
			wantViolations: 1,
		},
		{
			name:       "monotonic non strict allows equal neighbours",
			rule:       Rule{Type: RuleMonotonicSequence, FieldPath: "$[*]", Params: Params{"strict": false}},
			doc:        `[1, 2, 2, 3]`,
			wantPassed: true,
		},
		{
			name:       "monotonic decreasing",
			rule:       Rule{Type: RuleMonotonicSequence, FieldPath: "$[*]", Params: Params{"direction": "decreasing"}},
			doc:        `[3, 2, 1]`,
			wantPassed: true,
		},
		{
			name:           "monotonic decreasing rejects a rise",
			rule:           Rule{Type: RuleMonotonicSequence, FieldPath: "$[*]", Params: Params{"direction": "decreasing"}},
			doc:            `[3, 2, 4, 1]`,
			wantViolations: 1,
		},
		{
			name:           "subset of param",
			rule:           Rule{Type: RuleSubsetOfParam, FieldPath: "$[*].region", Params: Params{"param": "regiones"}},
			doc:            `[{"region": "norte"}, {"region": "sur"}, {"region": "este"}]`,
			params:         map[string]any{"regiones": "norte, sur"},
			wantViolations: 1,
		},
		{
			name:       "subset of param absent passes",
			rule:       Rule{Type: RuleSubsetOfParam, FieldPath: "$[*].region", Params: Params{"param": "regiones"}},
			doc:        `[{"region": "este"}]`,
			wantPassed: true,
		},
		{
			name:           "respects filter gte on dates",
			rule:           Rule{Type: RuleRespectsFilter, FieldPath: "$[*].fecha", Params: Params{"param": "fecha_desde", "mode": "gte"}},
			doc:            `[{"fecha": "2024-05-30"}, {"fecha": "2024-06-01"}, {"fecha": "2024-07-01"}]`,
			params:         map[string]any{"fecha_desde": "2024-06-01"},
			wantViolations: 1,
		},
		{
			name:       "respects filter lte with timestamps on boundary day",
			rule:       Rule{Type: RuleRespectsFilter, FieldPath: "$[*].fecha", Params: Params{"param": "fecha_hasta", "mode": "lte"}},
			doc:        `[{"fecha": "2024-06-30T18:00:00Z"}]`,
			params:     map[string]any{"fecha_hasta": "2024-06-30"},
			wantPassed: true,
		},
		{
			name:           "respects filter equals numeric",
			rule:           Rule{Type: RuleRespectsFilter, FieldPath: "$[*].cliente_id", Params: Params{"param": "cliente_id"}},
			doc:            `[{"cliente_id": 7}, {"cliente_id": 8}]`,
			params:         map[string]any{"cliente_id": "7"},
			wantViolations: 1,
		},
		{
			name:       "respects filter contains",
			rule:       Rule{Type: RuleRespectsFilter, FieldPath: "$[*].nombre", Params: Params{"param": "q", "mode": "contains"}},
			doc:        `[{"nombre": "Banco Bueno"}]`,
			params:     map[string]any{"q": "bueno"},
			wantPassed: true,
		},
		{
			name:       "respects filter without request param passes",
			rule:       Rule{Type: RuleRespectsFilter, FieldPath: "$[*].fecha", Params: Params{"param": "fecha_desde", "mode": "gte"}},
			doc:        `[{"fecha": "2020-01-01"}]`,
			wantPassed: true,
		},
		{
			name:       "unknown rule passes",
			rule:       Rule{Type: RuleType("made_up"), FieldPath: "$"},
			doc:        `{}`,
			wantPassed: true,
		},
		{
			name:           "malformed path fails",
			rule:           Rule{Type: RuleNotNull, FieldPath: "$.a[oops]"},
			doc:            `{}`,
			wantViolations: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newTestEvaluator()

			passed, violations := e.Evaluate(context.Background(), tt.rule, decode(t, tt.doc), tt.params)

			assert.Equal(t, tt.wantPassed, passed)
			assert.Len(t, violations, tt.wantViolations)
			assert.Equal(t, len(violations) == 0, passed, "passed must agree with the violation list")
		})
	}
}

func TestEvaluate_RespectsFilterViolationDetails(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator()

	rule := Rule{
		Type:      RuleRespectsFilter,
		FieldPath: "$[*].fecha",
		Params:    Params{"param": "fecha_desde", "mode": "gte"},
		Severity:  scanning.SeverityHigh,
	}
	doc := decode(t, `[{"fecha": "2024-05-30"}, {"fecha": "2024-06-01"}, {"fecha": "2024-07-01"}]`)

	passed, violations := e.Evaluate(context.Background(), rule, doc, map[string]any{"fecha_desde": "2024-06-01"})
	require.False(t, passed)
	require.Len(t, violations, 1)

	v := violations[0]
	assert.Equal(t, "$[0].fecha", v.FieldPath)
	assert.Equal(t, "2024-05-30", v.ActualValue)
	assert.Equal(t, scanning.SeverityHigh, v.Severity)
	assert.Equal(t, "fecha_desde", v.Context["filter"])
}

func TestEvaluate_NoCredentialsInOutput(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator()

	rule := Rule{Type: RuleNoCredentialsInOutput, FieldPath: "$", Severity: scanning.SeverityCritical}
	doc := decode(t, `{"user": {"password": "abc123", "name": "x"}}`)

	passed, violations := e.Evaluate(context.Background(), rule, doc, nil)
	require.False(t, passed)
	require.Len(t, violations, 1)

	assert.Equal(t, "$.user.password", violations[0].FieldPath)
	assert.Equal(t, RedactedMarker, violations[0].ActualValue)
	assert.NotContains(t, violations[0].Message, "abc123")
}

func TestEvaluate_NoCredentialsDoesNotDescendIntoFlaggedKeys(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator()

	rule := Rule{Type: RuleNoCredentialsInOutput, FieldPath: "$"}
	doc := decode(t, `{"items": [{"api_key": {"secret": "s", "token": "t"}}, {"session_id": "z"}]}`)

	_, violations := e.Evaluate(context.Background(), rule, doc, nil)
	require.Len(t, violations, 2)
	assert.Equal(t, "$.items[0].api_key", violations[0].FieldPath)
	assert.Equal(t, "$.items[1].session_id", violations[1].FieldPath)
}

func TestEvaluate_IsPure(t *testing.T) {
	t.Parallel()
	e := newTestEvaluator()

	rule := Rule{Type: RuleUniqueValues, FieldPath: "$[*]"}
	doc := decode(t, `[1, 2, 2]`)

	p1, v1 := e.Evaluate(context.Background(), rule, doc, nil)
	p2, v2 := e.Evaluate(context.Background(), rule, doc, nil)
	assert.Equal(t, p1, p2)
	assert.Equal(t, v1, v2)
}

func TestIsSensitiveKey(t *testing.T) {
	t.Parallel()

	for _, k := range []string{"password", "DB_PASSWORD", "apiKey", "api-key", "refresh_token", "private_key"} {
		assert.True(t, IsSensitiveKey(k), k)
	}
	assert.False(t, IsSensitiveKey("name"))
}
