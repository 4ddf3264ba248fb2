package gate

import (
	"strings"

	"github.com/ahrav/buenobot/internal/domain/scanning"
)

// Checklist item keys.
const (
	ItemNoExposedCredentials      = "no_exposed_credentials"
	ItemNoCriticalVulnerabilities = "no_critical_vulnerabilities"
	ItemFiltersFunctioning        = "filters_functioning"
	ItemCodeFreeOfCriticalErrors  = "code_free_of_critical_errors"
	ItemAPIResponding             = "api_responding"
	ItemPermissionsCorrect        = "permissions_correct"
)

type checklistItem struct {
	key     string
	matches []string
}

var checklistItems = []checklistItem{
	{key: ItemNoExposedCredentials, matches: []string{"secret", "credential"}},
	{key: ItemNoCriticalVulnerabilities, matches: []string{"security", "vuln", "dependenc"}},
	{key: ItemFiltersFunctioning, matches: []string{"filter", "contract"}},
	{key: ItemCodeFreeOfCriticalErrors, matches: []string{"lint", "static", "code"}},
	{key: ItemAPIResponding, matches: []string{"health", "api", "smoke"}},
	{key: ItemPermissionsCorrect, matches: []string{"permission", "auth", "rbac"}},
}

// ChecklistKeys returns the checklist item keys in display order.
func ChecklistKeys() []string {
	keys := make([]string, len(checklistItems))
	for i, it := range checklistItems {
		keys[i] = it.key
	}
	return keys
}

// Checklist evaluates the fixed checklist for r. Every item starts true and
// is flipped by a failed check whose id or category mentions one of the
// item's keywords. Errored checks carry no verdict and flip nothing.
func Checklist(r *scanning.Report) map[string]bool {
	out := make(map[string]bool, len(checklistItems))
	for _, it := range checklistItems {
		out[it.key] = true
	}

	for _, res := range r.CheckResults() {
		if res.Status != scanning.CheckStatusFailed {
			continue
		}
		subject := strings.ToLower(res.CheckID + " " + res.Category)
		for _, it := range checklistItems {
			for _, m := range it.matches {
				if strings.Contains(subject, m) {
					out[it.key] = false
					break
				}
			}
		}
	}
	return out
}
