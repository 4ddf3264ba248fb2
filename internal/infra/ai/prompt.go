package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ahrav/buenobot/internal/domain/analysis"
)

const outputSchema = `{
  "summary": "string, 2-4 sentences",
  "root_causes": [{"cause": "string", "evidence_ids": ["F1"], "severity": "critical|high|medium|low", "explanation": "string"}],
  "recommendations": [{"title": "string", "priority": "P0|P1|P2|P3|P4", "effort": "low|medium|high", "description": "string", "code_example": "optional string"}],
  "risk_score": "integer 0-100",
  "confidence": "number 0.0-1.0",
  "suggested_next_checks": ["string"],
  "notable_anomalies": ["string"]
}`

// systemPrompt instructs the engine to answer with a single JSON object.
func systemPrompt() string {
	return "You are a release quality and security reviewer. You receive the evidence " +
		"gathered by an automated quality gate and explain the underlying risk.\n" +
		"Only reference evidence ids that appear in the input. Do not invent findings.\n" +
		"Respond with exactly one JSON object and nothing else, matching this schema:\n" +
		outputSchema
}

func modeInstruction(mode analysis.Mode) string {
	switch mode {
	case analysis.ModeQuick:
		return "Be brief: at most 2 root causes and 3 recommendations."
	case analysis.ModeDeep:
		return "Be thorough: correlate findings across checks and include code examples where useful."
	default:
		return "Give a balanced analysis: up to 5 root causes and 5 recommendations."
	}
}

// userPrompt renders the pack as the analysis request.
func userPrompt(pack analysis.EvidencePack, mode analysis.Mode) (string, error) {
	data, err := json.MarshalIndent(pack, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding evidence: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis mode: %s. %s\n\n", mode, modeInstruction(mode))
	b.WriteString("Evidence:\n")
	b.Write(data)
	return b.String(), nil
}
