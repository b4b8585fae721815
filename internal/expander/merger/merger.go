// Package merger combines per-module suggestion lists for one term into a
// single deterministic ordering.
package merger

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
)

// Expansion is one distinct suggestion text with every module that
// proposed it, in merged order.
type Expansion struct {
	Text    string              `json:"text"`
	Sources []module.Suggestion `json:"sources"`
	// Score is the fused cross-module score, set only when normalisation is on.
	Score float64 `json:"score,omitempty"`
}

// Merge flattens the per-module lists. Within a module a repeated text keeps
// its best rank only; across modules every provenance entry survives. The
// result is ordered by rank, then module id, then text, and truncated to
// topN after merging so no module is starved beforehand. topN <= 0 keeps
// everything.
func Merge(perModule [][]module.Suggestion, topN int) []module.Suggestion {
	total := 0
	for _, sugs := range perModule {
		total += len(sugs)
	}
	merged := make([]module.Suggestion, 0, total)

	type key struct{ module, text string }
	seen := make(map[key]int, total)
	for _, sugs := range perModule {
		for _, s := range sugs {
			k := key{s.Module, s.Text}
			if i, dup := seen[k]; dup {
				if s.Rank < merged[i].Rank {
					merged[i] = s
				}
				continue
			}
			seen[k] = len(merged)
			merged = append(merged, s)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Text < b.Text
	})
	if topN > 0 && len(merged) > topN {
		merged = merged[:topN]
	}
	return merged
}

// Group collapses merged suggestions by text. Groups appear in order of
// their first (best) suggestion.
func Group(merged []module.Suggestion) []Expansion {
	out := make([]Expansion, 0, len(merged))
	index := make(map[string]int, len(merged))
	for _, s := range merged {
		if i, ok := index[s.Text]; ok {
			out[i].Sources = append(out[i].Sources, s)
			continue
		}
		index[s.Text] = len(out)
		out = append(out, Expansion{Text: s.Text, Sources: []module.Suggestion{s}})
	}
	return out
}
