// Package ranker puts suggestions from different modules on a common scale.
// Native scores (distances, similarities, frequencies) are not comparable
// across module types, so the normalised score is derived from rank alone.
package ranker

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
)

// K is the reciprocal rank fusion constant.
const K = 60

// Normalize sets Normalized = 1/(K+rank) on every suggestion, rounded to
// four decimals.
func Normalize(sugs []module.Suggestion) {
	for i := range sugs {
		sugs[i].Normalized = Reciprocal(sugs[i].Rank)
	}
}

// Reciprocal returns the fused score for a 1-based rank.
func Reciprocal(rank int) float64 {
	if rank < 1 {
		return 0
	}
	return math.Round(10000/float64(K+rank)) / 10000
}

// Fuse sums the reciprocal scores of every source proposing the same text,
// giving texts that several modules agree on a higher combined score.
func Fuse(sources []module.Suggestion) float64 {
	var total float64
	for _, s := range sources {
		total += Reciprocal(s.Rank)
	}
	return math.Round(total*10000) / 10000
}
