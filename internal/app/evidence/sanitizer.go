package evidence

import (
	regexp "github.com/wasilibs/go-re2"
)

// Redacted replaces every value removed by the sanitizer.
const Redacted = "[REDACTED]"

type redaction struct {
	re   *regexp.Regexp
	repl string
}

// Sanitizer scrubs credentials and personal data from free text before it
// leaves the process.
type Sanitizer struct {
	redactions []redaction
}

// NewSanitizer compiles the default redaction patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{redactions: []redaction{
		// key=value and key: value assignments, quoted or not. The key may carry
		// a prefix or suffix such as db_password or ACCESS_TOKEN_V2.
		{
			re:   regexp.MustCompile(`(?i)([a-z0-9_\-]*(?:password|passwd|pwd|secret|token|api[_-]?key|apikey|access[_-]?key)[a-z0-9_\-]*["']?\s*[:=]\s*)("[^"]*"|'[^']*'|[^\s,;&"']+)`),
			repl: "${1}" + Redacted,
		},
		{
			re:   regexp.MustCompile(`(?i)\b(bearer\s+)[a-z0-9\-._~+/]+=*`),
			repl: "${1}" + Redacted,
		},
		{
			re:   regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			repl: Redacted,
		},
		{
			re:   regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`),
			repl: Redacted,
		},
	}}
}

// Sanitize returns s with every sensitive match replaced. It is safe to call
// on already sanitized text.
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return text
	}
	for _, r := range s.redactions {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return text
}
