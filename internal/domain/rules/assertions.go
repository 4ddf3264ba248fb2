package rules

import (
	"fmt"
	"math"
	"strings"
	"time"
)

func (e *Evaluator) dateInRange(matches []Match, p Params) []Violation {
	today := startOfDay(e.now())

	var lo, hi *time.Time
	if s, ok := p.String("min_date"); ok {
		if t, _, ok := parseDate(s); ok {
			t = startOfDay(t)
			lo = &t
		}
	} else if n, ok := p.Int("min_days_ago"); ok {
		t := today.AddDate(0, 0, -n)
		lo = &t
	}
	if s, ok := p.String("max_date"); ok {
		if t, _, ok := parseDate(s); ok {
			t = startOfDay(t)
			hi = &t
		}
	} else if n, ok := p.Int("max_days_ahead"); ok {
		t := today.AddDate(0, 0, n)
		hi = &t
	}

	var out []Violation
	for _, m := range matches {
		if m.Value == nil {
			continue
		}
		t, _, ok := dateValue(m.Value)
		if !ok {
			out = append(out, Violation{
				RuleType:    RuleDateInRange,
				FieldPath:   m.Path,
				Message:     "value is not a valid date",
				ActualValue: m.Value,
			})
			continue
		}
		day := startOfDay(t)
		if lo != nil && day.Before(*lo) {
			out = append(out, Violation{
				RuleType:    RuleDateInRange,
				FieldPath:   m.Path,
				Message:     fmt.Sprintf("date %s is before %s", day.Format(time.DateOnly), lo.Format(time.DateOnly)),
				ActualValue: m.Value,
				Expected:    ">= " + lo.Format(time.DateOnly),
			})
			continue
		}
		if hi != nil && day.After(*hi) {
			out = append(out, Violation{
				RuleType:    RuleDateInRange,
				FieldPath:   m.Path,
				Message:     fmt.Sprintf("date %s is after %s", day.Format(time.DateOnly), hi.Format(time.DateOnly)),
				ActualValue: m.Value,
				Expected:    "<= " + hi.Format(time.DateOnly),
			})
		}
	}
	return out
}

func (e *Evaluator) noFutureDates(matches []Match, p Params) []Violation {
	tolerance, _ := p.Int("tolerance_days")
	limit := startOfDay(e.now()).AddDate(0, 0, tolerance)

	var out []Violation
	for _, m := range matches {
		t, _, ok := dateValue(m.Value)
		if !ok {
			continue
		}
		if startOfDay(t).After(limit) {
			out = append(out, Violation{
				RuleType:    RuleNoFutureDates,
				FieldPath:   m.Path,
				Message:     "date is in the future",
				ActualValue: m.Value,
				Expected:    "<= " + limit.Format(time.DateOnly),
			})
		}
	}
	return out
}

func valueInRange(matches []Match, p Params) []Violation {
	lo, hasMin := p.Float("min")
	hi, hasMax := p.Float("max")

	var out []Violation
	for _, m := range matches {
		if m.Value == nil {
			continue
		}
		f, ok := parseNumber(m.Value)
		if !ok {
			out = append(out, Violation{
				RuleType:    RuleValueInRange,
				FieldPath:   m.Path,
				Message:     "value is not numeric",
				ActualValue: m.Value,
			})
			continue
		}
		if (hasMin && f < lo) || (hasMax && f > hi) {
			out = append(out, Violation{
				RuleType:    RuleValueInRange,
				FieldPath:   m.Path,
				Message:     fmt.Sprintf("value %s out of range", stringify(m.Value)),
				ActualValue: m.Value,
				Expected:    rangeLabel(hasMin, lo, hasMax, hi),
			})
		}
	}
	return out
}

func rangeLabel(hasMin bool, lo float64, hasMax bool, hi float64) string {
	from, to := "-inf", "+inf"
	if hasMin {
		from = stringify(lo)
	}
	if hasMax {
		to = stringify(hi)
	}
	return "[" + from + ", " + to + "]"
}

func allowedValues(rt RuleType, matches []Match, p Params) []Violation {
	allowed := p.StringList("values")
	fold := p.Bool("case_insensitive", false)

	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if fold {
			a = strings.ToLower(a)
		}
		set[a] = struct{}{}
	}

	var out []Violation
	for _, m := range matches {
		if m.Value == nil {
			continue
		}
		s := stringify(m.Value)
		if fold {
			s = strings.ToLower(s)
		}
		if _, ok := set[s]; !ok {
			out = append(out, Violation{
				RuleType:    rt,
				FieldPath:   m.Path,
				Message:     fmt.Sprintf("value %q is not allowed", stringify(m.Value)),
				ActualValue: m.Value,
				Expected:    allowed,
			})
		}
	}
	return out
}

// allowedValuesIf applies an allow-list only when the request parameter
// named by if_param carries one of the values in if_value.
func allowedValuesIf(matches []Match, p Params, req map[string]any) []Violation {
	param, _ := p.String("if_param")
	actual, ok := req[param]
	if param == "" || !ok || actual == nil {
		return nil
	}
	conditions := p.StringList("if_value")
	want := stringify(actual)
	for _, c := range conditions {
		if c == want {
			out := allowedValues(RuleAllowedValuesIf, matches, p)
			for i := range out {
				out[i].Context = map[string]any{"condition": param + "=" + want}
			}
			return out
		}
	}
	return nil
}

func notNull(matches []Match, path Path) []Violation {
	if len(matches) == 0 && !path.HasWildcard() {
		return []Violation{{
			RuleType:  RuleNotNull,
			FieldPath: path.String(),
			Message:   "field is missing",
		}}
	}
	var out []Violation
	for _, m := range matches {
		if m.Value == nil {
			out = append(out, Violation{
				RuleType:    RuleNotNull,
				FieldPath:   m.Path,
				Message:     "value is null",
				ActualValue: nil,
			})
		}
	}
	return out
}

func fieldsPresent(matches []Match, path Path, p Params) []Violation {
	fields := p.StringList("fields")
	if len(matches) == 0 && !path.HasWildcard() {
		return []Violation{{
			RuleType:  RuleFieldsPresent,
			FieldPath: path.String(),
			Message:   "object is missing",
			Expected:  fields,
		}}
	}

	var out []Violation
	for _, m := range matches {
		obj, ok := m.Value.(map[string]any)
		if !ok {
			out = append(out, Violation{
				RuleType:    RuleFieldsPresent,
				FieldPath:   m.Path,
				Message:     "value is not an object",
				ActualValue: m.Value,
				Expected:    fields,
			})
			continue
		}
		var missing []string
		for _, f := range fields {
			if _, ok := obj[f]; !ok {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			out = append(out, Violation{
				RuleType:  RuleFieldsPresent,
				FieldPath: m.Path,
				Message:   "missing fields: " + strings.Join(missing, ", "),
				Expected:  fields,
				Context:   map[string]any{"missing": missing},
			})
		}
	}
	return out
}

func arrayNotEmpty(matches []Match, path Path) []Violation {
	if len(matches) == 0 {
		return []Violation{{
			RuleType:  RuleArrayNotEmpty,
			FieldPath: path.String(),
			Message:   "array is missing",
		}}
	}
	var out []Violation
	for _, m := range matches {
		arr, ok := m.Value.([]any)
		switch {
		case !ok:
			out = append(out, Violation{
				RuleType:    RuleArrayNotEmpty,
				FieldPath:   m.Path,
				Message:     "value is not an array",
				ActualValue: m.Value,
			})
		case len(arr) == 0:
			out = append(out, Violation{
				RuleType:    RuleArrayNotEmpty,
				FieldPath:   m.Path,
				Message:     "array is empty",
				ActualValue: arr,
			})
		}
	}
	return out
}

func uniqueValues(matches []Match) []Violation {
	seen := make(map[string]string, len(matches))
	var out []Violation
	for _, m := range matches {
		if m.Value == nil {
			continue
		}
		key := stringify(m.Value)
		if first, dup := seen[key]; dup {
			out = append(out, Violation{
				RuleType:    RuleUniqueValues,
				FieldPath:   m.Path,
				Message:     fmt.Sprintf("duplicate value %q", key),
				ActualValue: m.Value,
				Context:     map[string]any{"first_seen": first},
			})
			continue
		}
		seen[key] = m.Path
	}
	return out
}

func noNegativeValues(matches []Match, p Params) []Violation {
	allowZero := p.Bool("allow_zero", true)

	var out []Violation
	for _, m := range matches {
		f, ok := toFloat(m.Value)
		if !ok {
			continue
		}
		if f < 0 || (!allowZero && f == 0) {
			exp := ">= 0"
			if !allowZero {
				exp = "> 0"
			}
			out = append(out, Violation{
				RuleType:    RuleNoNegativeValues,
				FieldPath:   m.Path,
				Message:     fmt.Sprintf("value %s is not allowed", stringify(m.Value)),
				ActualValue: m.Value,
				Expected:    exp,
			})
		}
	}
	return out
}

// sumEquals compares the sum of the selected values against either a fixed
// expected value or the number found at expected_path.
func sumEquals(doc any, matches []Match, path Path, p Params) ([]Violation, error) {
	tolerance, ok := p.Float("tolerance")
	if !ok {
		tolerance = 0.01
	}

	expected, ok := p.Float("expected")
	if !ok {
		expr, hasPath := p.String("expected_path")
		if !hasPath {
			return nil, fmt.Errorf("sum_equals requires expected or expected_path")
		}
		total, err := Select(doc, expr)
		if err != nil {
			return nil, err
		}
		if len(total) == 0 {
			return []Violation{{
				RuleType:  RuleSumEquals,
				FieldPath: expr,
				Message:   "expected total is missing",
			}}, nil
		}
		if expected, ok = toFloat(total[0].Value); !ok {
			return []Violation{{
				RuleType:    RuleSumEquals,
				FieldPath:   total[0].Path,
				Message:     "expected total is not numeric",
				ActualValue: total[0].Value,
			}}, nil
		}
	}

	var sum float64
	for _, m := range matches {
		if f, ok := toFloat(m.Value); ok {
			sum += f
		}
	}
	if math.Abs(sum-expected) > tolerance {
		return []Violation{{
			RuleType:    RuleSumEquals,
			FieldPath:   path.String(),
			Message:     fmt.Sprintf("sum %s does not equal %s", stringify(sum), stringify(expected)),
			ActualValue: sum,
			Expected:    expected,
			Context:     map[string]any{"tolerance": tolerance},
		}}, nil
	}
	return nil, nil
}

func monotonicSequence(matches []Match, p Params) []Violation {
	direction, _ := p.String("direction")
	decreasing := strings.EqualFold(direction, "decreasing") || strings.EqualFold(direction, "desc")
	strict := p.Bool("strict", true)

	var prev *Match
	for i := range matches {
		m := matches[i]
		if m.Value == nil {
			continue
		}
		if prev != nil {
			c := compareValues(m.Value, prev.Value)
			if decreasing {
				c = -c
			}
			if c < 0 || (strict && c == 0) {
				order := "increasing"
				if decreasing {
					order = "decreasing"
				}
				return []Violation{{
					RuleType:    RuleMonotonicSequence,
					FieldPath:   m.Path,
					Message:     fmt.Sprintf("sequence is not %s at %s", order, m.Path),
					ActualValue: m.Value,
					Context:     map[string]any{"previous": prev.Value, "previous_path": prev.Path},
				}}
			}
		}
		prev = &m
	}
	return nil
}

func subsetOfParam(matches []Match, p Params, req map[string]any) []Violation {
	param, _ := p.String("param")
	raw, ok := req[param]
	if param == "" || !ok || raw == nil {
		return nil
	}
	allowedList := asList(raw)
	if len(allowedList) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(allowedList))
	labels := make([]string, 0, len(allowedList))
	for _, a := range allowedList {
		s := strings.TrimSpace(stringify(a))
		allowed[s] = struct{}{}
		labels = append(labels, s)
	}

	var out []Violation
	for _, m := range matches {
		if m.Value == nil {
			continue
		}
		s := stringify(m.Value)
		if _, ok := allowed[s]; !ok {
			out = append(out, Violation{
				RuleType:    RuleSubsetOfParam,
				FieldPath:   m.Path,
				Message:     fmt.Sprintf("value %q not in requested %s", s, param),
				ActualValue: m.Value,
				Expected:    labels,
				Context:     map[string]any{"filter": param},
			})
		}
	}
	return out
}

func respectsFilter(matches []Match, p Params, req map[string]any) []Violation {
	param, _ := p.String("param")
	raw, ok := req[param]
	if param == "" || !ok || raw == nil {
		return nil
	}
	want := stringify(raw)
	if strings.TrimSpace(want) == "" {
		return nil
	}
	modeStr, _ := p.String("mode")
	mode := FilterMode(strings.ToLower(modeStr))
	if mode == "" {
		mode = FilterEquals
	}

	var out []Violation
	for _, m := range matches {
		if m.Value == nil {
			continue
		}
		if filterHolds(mode, m.Value, want) {
			continue
		}
		out = append(out, Violation{
			RuleType:    RuleRespectsFilter,
			FieldPath:   m.Path,
			Message:     fmt.Sprintf("value %q does not satisfy filter %s %s %s", stringify(m.Value), param, mode, want),
			ActualValue: m.Value,
			Expected:    string(mode) + " " + want,
			Context:     map[string]any{"filter": param, "mode": string(mode)},
		})
	}
	return out
}

func filterHolds(mode FilterMode, value any, want string) bool {
	switch mode {
	case FilterGTE:
		return compareValues(value, want) >= 0
	case FilterLTE:
		return compareValues(value, want) <= 0
	case FilterContains:
		return strings.Contains(strings.ToLower(stringify(value)), strings.ToLower(want))
	default:
		return compareValues(value, want) == 0
	}
}
