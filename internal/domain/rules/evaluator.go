package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/buenobot/pkg/common/logger"
)

var errUnknownRule = errors.New("unknown rule type")

// Evaluator applies contract rules to decoded JSON documents.
type Evaluator struct {
	logger *logger.Logger
	now    func() time.Time
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithClock overrides the time source used by date rules.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(log *logger.Logger, opts ...EvaluatorOption) *Evaluator {
	if log == nil {
		log = logger.Noop()
	}
	e := &Evaluator{logger: log, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate applies rule to doc. requestParams are the query parameters the
// document was fetched with, used by filter rules. Violations carry the
// rule's severity.
func (e *Evaluator) Evaluate(ctx context.Context, rule Rule, doc any, requestParams map[string]any) (bool, []Violation) {
	passed, violations := e.EvaluateType(ctx, rule.Type, doc, rule.FieldPath, rule.Params, requestParams)
	for i := range violations {
		if violations[i].Severity == "" {
			violations[i].Severity = rule.Severity
		}
	}
	return passed, violations
}

// EvaluateType applies a rule of type rt at fieldPath. Unknown rule types
// pass with a warning. Malformed paths and internal failures fail the rule
// with a single synthetic violation and never propagate.
func (e *Evaluator) EvaluateType(
	ctx context.Context,
	rt RuleType,
	doc any,
	fieldPath string,
	params Params,
	requestParams map[string]any,
) (passed bool, violations []Violation) {
	if !rt.Known() {
		e.logger.Warn(ctx, "skipping unknown rule type", "rule_type", string(rt), "field_path", fieldPath)
		return true, nil
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, "rule evaluation panicked", "rule_type", string(rt), "panic", fmt.Sprint(r))
			passed = false
			violations = []Violation{evaluationError(rt, fieldPath, fmt.Errorf("%v", r))}
		}
	}()

	path, err := ParsePath(fieldPath)
	if err != nil {
		return false, []Violation{evaluationError(rt, fieldPath, err)}
	}
	if params == nil {
		params = Params{}
	}

	violations, err = e.dispatch(rt, doc, path, params, requestParams)
	if err != nil {
		if errors.Is(err, errUnknownRule) {
			return true, nil
		}
		return false, []Violation{evaluationError(rt, fieldPath, err)}
	}
	return len(violations) == 0, violations
}

func (e *Evaluator) dispatch(rt RuleType, doc any, path Path, p Params, req map[string]any) ([]Violation, error) {
	matches := path.Select(doc)

	switch rt {
	case RuleDateInRange:
		return e.dateInRange(matches, p), nil
	case RuleNoFutureDates:
		return e.noFutureDates(matches, p), nil
	case RuleValueInRange:
		return valueInRange(matches, p), nil
	case RuleAllowedValues:
		return allowedValues(rt, matches, p), nil
	case RuleAllowedValuesIf:
		return allowedValuesIf(matches, p, req), nil
	case RuleNotNull:
		return notNull(matches, path), nil
	case RuleFieldsPresent:
		return fieldsPresent(matches, path, p), nil
	case RuleArrayNotEmpty:
		return arrayNotEmpty(matches, path), nil
	case RuleUniqueValues:
		return uniqueValues(matches), nil
	case RuleNoNegativeValues:
		return noNegativeValues(matches, p), nil
	case RuleSumEquals:
		return sumEquals(doc, matches, path, p)
	case RuleMonotonicSequence:
		return monotonicSequence(matches, p), nil
	case RuleSubsetOfParam:
		return subsetOfParam(matches, p, req), nil
	case RuleRespectsFilter:
		return respectsFilter(matches, p, req), nil
	case RuleNoCredentialsInOutput:
		return noCredentials(matches), nil
	default:
		return nil, errUnknownRule
	}
}

func evaluationError(rt RuleType, fieldPath string, err error) Violation {
	return Violation{
		RuleType:  rt,
		FieldPath: fieldPath,
		Message:   fmt.Sprintf("rule evaluation error: %v", err),
	}
}
