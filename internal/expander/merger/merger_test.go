package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
)

func sug(mod, text string, rank int) module.Suggestion {
	return module.Suggestion{Text: text, Module: mod, Rank: rank, Score: 1}
}

func TestMergeOrdersByRankThenModule(t *testing.T) {
	merged := Merge([][]module.Suggestion{
		{sug("b", "kitten", 1), sug("b", "feline", 2)},
		{sug("a", "kitty", 1), sug("a", "kitten", 2)},
	}, 0)

	assert.Equal(t, []module.Suggestion{
		sug("a", "kitty", 1),
		sug("b", "kitten", 1),
		sug("a", "kitten", 2),
		sug("b", "feline", 2),
	}, merged)
}

func TestMergeDedupesWithinModuleOnly(t *testing.T) {
	merged := Merge([][]module.Suggestion{
		{sug("a", "kitten", 1), sug("a", "kitten", 3)},
		{sug("b", "kitten", 2)},
	}, 0)

	assert.Len(t, merged, 2)
	assert.Equal(t, sug("a", "kitten", 1), merged[0])
	assert.Equal(t, sug("b", "kitten", 2), merged[1])
}

func TestMergeTruncatesAfterMerge(t *testing.T) {
	merged := Merge([][]module.Suggestion{
		{sug("a", "a1", 1), sug("a", "a2", 2), sug("a", "a3", 3)},
		{sug("b", "b1", 1)},
	}, 2)

	// b1 survives even though module a alone could fill the budget.
	assert.Equal(t, []module.Suggestion{sug("a", "a1", 1), sug("b", "b1", 1)}, merged)
}

func TestMergeEmpty(t *testing.T) {
	assert.Empty(t, Merge(nil, 10))
	assert.Empty(t, Merge([][]module.Suggestion{{}, nil}, 10))
}

func TestGroup(t *testing.T) {
	groups := Group([]module.Suggestion{
		sug("a", "kitten", 1),
		sug("b", "feline", 1),
		sug("b", "kitten", 2),
	})

	assert.Len(t, groups, 2)
	assert.Equal(t, "kitten", groups[0].Text)
	assert.Equal(t, []module.Suggestion{sug("a", "kitten", 1), sug("b", "kitten", 2)}, groups[0].Sources)
	assert.Equal(t, "feline", groups[1].Text)
	assert.Len(t, groups[1].Sources, 1)
}
