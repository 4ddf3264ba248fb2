package gate

import (
	"cmp"
	"slices"

	"github.com/ahrav/buenobot/internal/domain/scanning"
)

// MaxRecommendations bounds the prioritized recommendation list.
const MaxRecommendations = 10

// Recommendations derives the prioritized remediation list for r from the
// findings that carry a recommendation. Entries are ordered by priority then
// severity and de-duplicated by finding title.
func Recommendations(r *scanning.Report) []scanning.Recommendation {
	var candidates []scanning.LocatedFinding
	for _, f := range r.AllFindings() {
		if f.Recommendation != "" {
			candidates = append(candidates, f)
		}
	}
	slices.SortStableFunc(candidates, func(a, b scanning.LocatedFinding) int {
		return cmp.Or(
			cmp.Compare(a.EffectivePriority().Rank(), b.EffectivePriority().Rank()),
			cmp.Compare(a.Severity.Rank(), b.Severity.Rank()),
		)
	})

	seen := make(map[string]struct{}, len(candidates))
	out := make([]scanning.Recommendation, 0, min(len(candidates), MaxRecommendations))
	for _, f := range candidates {
		if len(out) == MaxRecommendations {
			break
		}
		if _, dup := seen[f.Title]; dup {
			continue
		}
		seen[f.Title] = struct{}{}
		out = append(out, scanning.Recommendation{
			Priority: f.EffectivePriority(),
			Title:    f.Title,
			Action:   f.Recommendation,
			CheckID:  f.CheckID,
		})
	}
	return out
}
