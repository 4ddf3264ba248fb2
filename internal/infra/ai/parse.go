package ai

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/ahrav/buenobot/internal/domain/analysis"
)

// Fallback values used when an engine answer cannot be decoded.
const (
	FallbackRiskScore  = 50
	FallbackConfidence = 0.1
)

var errNoJSONObject = errors.New("no JSON object in response")

// ExtractJSON returns the text between the first '{' and the last '}',
// dropping markdown fences or prose around it.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", errNoJSONObject
	}
	return text[start : end+1], nil
}

// looseNumber accepts JSON numbers, numeric strings and nulls.
type looseNumber float64

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	s = strings.TrimSuffix(s, "%")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = looseNumber(f)
	return nil
}

type wireNarrative struct {
	Summary             string                    `json:"summary"`
	RootCauses          []analysis.RootCause      `json:"root_causes"`
	Recommendations     []analysis.Recommendation `json:"recommendations"`
	RiskScore           looseNumber               `json:"risk_score"`
	Confidence          looseNumber               `json:"confidence"`
	SuggestedNextChecks []string                  `json:"suggested_next_checks"`
	NotableAnomalies    []string                  `json:"notable_anomalies"`
}

// ParseNarrative decodes an engine answer. Undecodable text yields the
// fallback narrative and ok=false; it is never an error. Numeric fields are
// clamped to their documented ranges.
func ParseNarrative(text string) (n analysis.Narrative, ok bool) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return fallbackNarrative(text), false
	}
	var w wireNarrative
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return fallbackNarrative(text), false
	}

	n = analysis.Narrative{
		Summary:             strings.TrimSpace(w.Summary),
		RootCauses:          w.RootCauses,
		Recommendations:     w.Recommendations,
		RiskScore:           riskScore(float64(w.RiskScore)),
		Confidence:          float64(w.Confidence),
		SuggestedNextChecks: w.SuggestedNextChecks,
		NotableAnomalies:    w.NotableAnomalies,
	}
	for i := range n.Recommendations {
		n.Recommendations[i].Priority = normalizePriority(n.Recommendations[i].Priority)
	}
	n.Clamp()
	return n, true
}

// riskScore clamps before converting so that NaN and infinities, which
// strconv accepts, land inside 0-100.
func riskScore(f float64) int {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 100:
		return 100
	}
	return int(math.Round(f))
}

func normalizePriority(p string) string {
	p = strings.ToUpper(strings.TrimSpace(p))
	switch p {
	case "P0", "P1", "P2", "P3", "P4":
		return p
	case "CRITICAL":
		return "P0"
	case "HIGH":
		return "P1"
	case "LOW":
		return "P3"
	default:
		return "P2"
	}
}

func fallbackNarrative(text string) analysis.Narrative {
	summary := "The analysis engine returned an unreadable answer."
	if excerpt := strings.TrimSpace(text); excerpt != "" {
		if len(excerpt) > 200 {
			excerpt = excerpt[:200]
		}
		summary += " Excerpt: " + excerpt
	}
	return analysis.Narrative{
		Summary:             summary,
		RootCauses:          []analysis.RootCause{},
		Recommendations:     []analysis.Recommendation{},
		RiskScore:           FallbackRiskScore,
		Confidence:          FallbackConfidence,
		SuggestedNextChecks: []string{},
		NotableAnomalies:    []string{},
	}
}
