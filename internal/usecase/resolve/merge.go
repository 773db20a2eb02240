package resolve

import (
	"sort"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/index"
)

// mergeSpaces deduplicates per-space hits by catalog handle and orders the
// result. A handle surfaced by two spaces always outranks one surfaced by a
// single space; similarity score only breaks ties within the same agreement
// level, and the best score across spaces is kept.
//
// Spaces are walked in canonical order and ties beyond score keep insertion
// order, so the output is deterministic for identical inputs.
func mergeSpaces(bySpace map[domain.Space][]index.Hit) []domain.Candidate {
	byHandle := make(map[string]int)
	var merged []domain.Candidate

	for _, space := range domain.SpaceOrder() {
		for _, h := range bySpace[space] {
			handle := h.Product.Handle
			if handle == "" {
				continue
			}
			if i, ok := byHandle[handle]; ok {
				c := &merged[i]
				if !c.FoundBy(space) {
					c.Sources = append(c.Sources, space)
					c.Matches++
				}
				if h.Score > c.Score {
					c.Score = h.Score
				}
				continue
			}
			byHandle[handle] = len(merged)
			merged = append(merged, domain.Candidate{
				Product: h.Product,
				Sources: []domain.Space{space},
				Matches: 1,
				Score:   h.Score,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Matches != merged[j].Matches {
			return merged[i].Matches > merged[j].Matches
		}
		return merged[i].Score > merged[j].Score
	})
	return merged
}
