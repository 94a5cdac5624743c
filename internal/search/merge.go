package search

import (
	"fmt"
	"sort"
)

type rankedHit struct {
	hit     map[string]any
	score   float64
	variant int
	rank    int
}

// mergeHits merges per-variant hit lists into one list ordered by score. Hits sharing a
// primary key collapse into the one with the best score; on equal scores the earlier
// variant wins. Hits without a usable key are kept as they are.
func mergeHits(perVariant [][]map[string]any, primaryKey string, score func(map[string]any) float64) []map[string]any {
	byID := make(map[string]int)
	var ranked []rankedHit
	for v, hits := range perVariant {
		for r, hit := range hits {
			h := rankedHit{hit: hit, score: score(hit), variant: v, rank: r}
			id, ok := hitID(hit[primaryKey])
			if !ok {
				ranked = append(ranked, h)
				continue
			}
			if i, seen := byID[id]; seen {
				if h.score > ranked[i].score {
					ranked[i] = h
				}
				continue
			}
			byID[id] = len(ranked)
			ranked = append(ranked, h)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.variant != b.variant {
			return a.variant < b.variant
		}
		return a.rank < b.rank
	})
	out := make([]map[string]any, len(ranked))
	for i, h := range ranked {
		out[i] = h.hit
	}
	return out
}

func hitID(v any) (string, bool) {
	switch id := v.(type) {
	case nil:
		return "", false
	case string:
		return id, id != ""
	case fmt.Stringer:
		return id.String(), true
	case float64, int, int64:
		return fmt.Sprint(id), true
	}
	return "", false
}
