package rules

import (
	"fmt"
	"strconv"
	"strings"

	regexp "github.com/wasilibs/go-re2"
)

// Match is a single value selected from a document, together with the
// concrete path that reached it.
type Match struct {
	Path  string
	Value any
}

type segmentKind uint8

const (
	segmentField segmentKind = iota
	segmentIndex
	segmentWildcard
)

type segment struct {
	kind  segmentKind
	field string
	index int
}

// Path is a parsed field path. Supported syntax is a leading "$" followed by
// any sequence of ".name", "[N]", "[*]" and ["name"] selectors.
type Path struct {
	raw      string
	segments []segment
}

// ParsePath parses a field path expression.
func ParsePath(expr string) (Path, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr[0] != '$' {
		return Path{}, fmt.Errorf("invalid field path %q: must start with '$'", expr)
	}

	p := Path{raw: expr}
	i := 1
	for i < len(expr) {
		switch expr[i] {
		case '.':
			j := i + 1
			for j < len(expr) && expr[j] != '.' && expr[j] != '[' {
				j++
			}
			name := expr[i+1 : j]
			if name == "" {
				return Path{}, fmt.Errorf("invalid field path %q: empty field name at offset %d", expr, i)
			}
			if name == "*" {
				p.segments = append(p.segments, segment{kind: segmentWildcard})
			} else {
				p.segments = append(p.segments, segment{kind: segmentField, field: name})
			}
			i = j
		case '[':
			end := strings.IndexByte(expr[i:], ']')
			if end < 0 {
				return Path{}, fmt.Errorf("invalid field path %q: unclosed '['", expr)
			}
			inner := strings.TrimSpace(expr[i+1 : i+end])
			seg, err := parseBracket(inner)
			if err != nil {
				return Path{}, fmt.Errorf("invalid field path %q: %w", expr, err)
			}
			p.segments = append(p.segments, seg)
			i += end + 1
		default:
			return Path{}, fmt.Errorf("invalid field path %q: unexpected %q at offset %d", expr, expr[i], i)
		}
	}
	return p, nil
}

func parseBracket(inner string) (segment, error) {
	switch {
	case inner == "*":
		return segment{kind: segmentWildcard}, nil
	case len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0]:
		name := inner[1 : len(inner)-1]
		if name == "" {
			return segment{}, fmt.Errorf("empty quoted field name")
		}
		return segment{kind: segmentField, field: name}, nil
	default:
		n, err := strconv.Atoi(inner)
		if err != nil || n < 0 {
			return segment{}, fmt.Errorf("invalid index %q", inner)
		}
		return segment{kind: segmentIndex, index: n}, nil
	}
}

// String returns the original expression.
func (p Path) String() string { return p.raw }

// HasWildcard reports whether the path can fan out to many values.
func (p Path) HasWildcard() bool {
	for _, s := range p.segments {
		if s.kind == segmentWildcard {
			return true
		}
	}
	return false
}

// Select returns every value in doc reached by the path, in document order.
// Missing fields and out-of-range indexes yield no match rather than an error.
func (p Path) Select(doc any) []Match {
	current := []Match{{Path: "$", Value: doc}}
	for _, seg := range p.segments {
		next := make([]Match, 0, len(current))
		for _, m := range current {
			next = appendSegment(next, m, seg)
		}
		current = next
		if len(current) == 0 {
			break
		}
	}
	return current
}

func appendSegment(dst []Match, m Match, seg segment) []Match {
	switch seg.kind {
	case segmentField:
		obj, ok := m.Value.(map[string]any)
		if !ok {
			return dst
		}
		v, ok := obj[seg.field]
		if !ok {
			return dst
		}
		return append(dst, Match{Path: childPath(m.Path, seg.field), Value: v})
	case segmentIndex:
		arr, ok := m.Value.([]any)
		if !ok || seg.index >= len(arr) {
			return dst
		}
		return append(dst, Match{Path: indexPath(m.Path, seg.index), Value: arr[seg.index]})
	case segmentWildcard:
		switch v := m.Value.(type) {
		case []any:
			for i, item := range v {
				dst = append(dst, Match{Path: indexPath(m.Path, i), Value: item})
			}
		case map[string]any:
			for _, k := range sortedKeys(v) {
				dst = append(dst, Match{Path: childPath(m.Path, k), Value: v[k]})
			}
		}
	}
	return dst
}

// Select parses expr and applies it to doc.
func Select(doc any, expr string) ([]Match, error) {
	p, err := ParsePath(expr)
	if err != nil {
		return nil, err
	}
	return p.Select(doc), nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

func childPath(parent, key string) string {
	if identRe.MatchString(key) {
		return parent + "." + key
	}
	return parent + "[" + strconv.Quote(key) + "]"
}

func indexPath(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}
