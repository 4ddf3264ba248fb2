package rules

import (
	"fmt"
	"strings"
)

// sensitiveKeywords flag object keys that should never appear in API output.
var sensitiveKeywords = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"credential",
	"private_key",
	"session_id",
	"sessionid",
	"access_key",
	"auth_key",
}

// IsSensitiveKey reports whether an object key looks like it holds a credential.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(strings.ReplaceAll(key, "-", "_"))
	for _, kw := range sensitiveKeywords {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}

func noCredentials(matches []Match) []Violation {
	var out []Violation
	for _, m := range matches {
		out = scanSensitive(out, m.Path, m.Value)
	}
	return out
}

// scanSensitive walks v and reports every sensitive key. Values under a
// flagged key are not descended into and are never echoed back.
func scanSensitive(out []Violation, path string, v any) []Violation {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			child := childPath(path, k)
			if IsSensitiveKey(k) {
				out = append(out, Violation{
					RuleType:    RuleNoCredentialsInOutput,
					FieldPath:   child,
					Message:     fmt.Sprintf("sensitive field %q exposed in response", k),
					ActualValue: RedactedMarker,
					Context:     map[string]any{"key": k},
				})
				continue
			}
			out = scanSensitive(out, child, t[k])
		}
	case []any:
		for i, item := range t {
			out = scanSensitive(out, indexPath(path, i), item)
		}
	}
	return out
}
