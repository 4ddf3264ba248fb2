package rules

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{time.DateOnly, true},
	{time.RFC3339Nano, false},
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", false},
	{time.DateTime, false},
	{"2006/01/02", true},
	{"02/01/2006", true},
}

// parseDate parses a date or timestamp string. dateOnly is true when the
// value carried no time-of-day component.
func parseDate(s string) (t time.Time, dateOnly bool, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	for _, l := range dateLayouts {
		if parsed, err := time.Parse(l.layout, s); err == nil {
			return parsed.UTC(), l.dateOnly, true
		}
	}
	return time.Time{}, false, false
}

func dateValue(v any) (time.Time, bool, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false, false
	}
	return parseDate(s)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseNumber(v any) (float64, bool) {
	if f, ok := toFloat(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

// compareValues orders two scalar values. Both sides are compared as dates
// when both parse as dates, then as numbers, and lexicographically
// otherwise. When either date lacks a time component the comparison is made
// at day granularity.
func compareValues(a, b any) int {
	as, bs := stringify(a), stringify(b)

	if at, aDay, ok := parseDate(as); ok {
		if bt, bDay, ok := parseDate(bs); ok {
			if aDay || bDay {
				at, bt = startOfDay(at), startOfDay(bt)
			}
			return at.Compare(bt)
		}
	}

	if af, ok := parseNumber(a); ok {
		if bf, ok := parseNumber(b); ok {
			return cmp.Compare(af, bf)
		}
	}

	return strings.Compare(as, bs)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
