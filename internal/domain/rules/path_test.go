package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestSelect(t *testing.T) {
	t.Parallel()

	doc := `{
		"data": [
			{"id": 1, "fecha": "2024-06-01", "tags": ["a", "b"]},
			{"id": 2, "fecha": "2024-06-02", "tags": []}
		],
		"meta": {"total": 2, "weird key": true}
	}`

	tests := []struct {
		name      string
		path      string
		wantPaths []string
	}{
		{name: "root", path: "$", wantPaths: []string{"$"}},
		{name: "nested field", path: "$.meta.total", wantPaths: []string{"$.meta.total"}},
		{name: "wildcard over array", path: "$.data[*].id", wantPaths: []string{"$.data[0].id", "$.data[1].id"}},
		{name: "index", path: "$.data[1].fecha", wantPaths: []string{"$.data[1].fecha"}},
		{name: "out of range index", path: "$.data[5].id", wantPaths: []string{}},
		{name: "missing field", path: "$.meta.nope", wantPaths: []string{}},
		{name: "quoted key", path: `$.meta["weird key"]`, wantPaths: []string{`$.meta["weird key"]`}},
		{name: "nested wildcards", path: "$.data[*].tags[*]", wantPaths: []string{"$.data[0].tags[0]", "$.data[0].tags[1]"}},
		{name: "field on array yields nothing", path: "$.data.id", wantPaths: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			matches, err := Select(decode(t, doc), tt.path)
			require.NoError(t, err)

			got := make([]string, 0, len(matches))
			for _, m := range matches {
				got = append(got, m.Path)
			}
			assert.Equal(t, tt.wantPaths, got)
		})
	}
}

func TestParsePath_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
	}{
		{name: "empty", path: ""},
		{name: "missing root", path: "data.id"},
		{name: "empty segment", path: "$..id"},
		{name: "unclosed bracket", path: "$.data[0"},
		{name: "non numeric index", path: "$.data[x]"},
		{name: "negative index", path: "$.data[-1]"},
		{name: "stray character", path: "$data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParsePath(tt.path)
			assert.Error(t, err)
		})
	}
}

func TestPath_HasWildcard(t *testing.T) {
	t.Parallel()

	p, err := ParsePath("$.items[*].id")
	require.NoError(t, err)
	assert.True(t, p.HasWildcard())

	p, err = ParsePath("$.items[0].id")
	require.NoError(t, err)
	assert.False(t, p.HasWildcard())
}

func TestChildPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want string
	}{
		{key: "fecha", want: "$.fecha"},
		{key: "fecha_desde", want: "$.fecha_desde"},
		{key: "x-total", want: "$.x-total"},
		{key: "2024", want: `$["2024"]`},
		{key: "first name", want: `$["first name"]`},
		{key: "", want: `$[""]`},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, childPath("$", tt.key))
		})
	}
}
