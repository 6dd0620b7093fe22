package squad

import (
	"sort"

	"github.com/forgeworks/squadron/pkg/models"
)

// mergeArtifacts collapses per-agent artifacts into one artifact per
// identifier. When two agents produce the same identifier, the higher
// declared agent priority wins; on equal priority, the first-completed
// result wins. Unspecified order here would be a bug: the gate must see
// the same artifact set for the same completion history.
func mergeArtifacts(results []AgentResult) []models.Artifact {
	// Resolve ties against completion order, not declaration order.
	ordered := make([]AgentResult, 0, len(results))
	for _, r := range results {
		if r.Artifact != nil {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].completionOrder < ordered[j].completionOrder
	})

	type winner struct {
		artifact models.Artifact
		priority int
	}
	index := make(map[string]int)
	var winners []winner

	for _, r := range ordered {
		a := *r.Artifact
		i, seen := index[a.ID]
		if !seen {
			index[a.ID] = len(winners)
			winners = append(winners, winner{artifact: a, priority: r.Priority})
			continue
		}
		// Higher priority replaces; equal priority keeps the earlier
		// completion already in place.
		if r.Priority > winners[i].priority {
			winners[i] = winner{artifact: a, priority: r.Priority}
		}
	}

	out := make([]models.Artifact, len(winners))
	for i, w := range winners {
		out[i] = w.artifact
	}
	return out
}
