package anagram

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/lexicon"
)

const words = `separate	40
seperate	2
separated	30
desperate	12
cat	100
act	20
tac	5
cast	8
coat	10
`

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func load(t *testing.T, params map[string]any) (*Module, error) {
	t.Helper()
	if params == nil {
		params = map[string]any{}
	}
	if _, ok := params["file"]; !ok {
		params["file"] = writeFile(t, "words.tsv", words)
	}
	src, err := lexicon.NewSource(config.StorageConfig{})
	require.NoError(t, err)
	m, err := New(context.Background(), config.ModuleConfig{ID: "ana", Type: Type, Params: params}, module.Env{Lexicons: src})
	if err != nil {
		return nil, err
	}
	return m.(*Module), nil
}

func texts(sugs []module.Suggestion) []string {
	out := make([]string, len(sugs))
	for i, s := range sugs {
		out[i] = s.Text
	}
	return out
}

func TestExpandFindsVariants(t *testing.T) {
	m, err := load(t, nil)
	require.NoError(t, err)

	sugs, err := m.Expand(context.Background(), "separate", module.Options{})
	require.NoError(t, err)
	// desperate needs three multiset edits and is out of reach.
	assert.Equal(t, []string{"separated", "seperate"}, texts(sugs))
	assert.InDelta(t, 1-1.0/9, sugs[0].Score, 1e-9)
	assert.InDelta(t, 1-1.0/8, sugs[1].Score, 1e-9)
}

func TestExpandAnagramsAndInsertions(t *testing.T) {
	m, err := load(t, nil)
	require.NoError(t, err)

	sugs, err := m.Expand(context.Background(), "Cat", module.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"act", "coat", "cast", "tac"}, texts(sugs))
	assert.Equal(t, []int{1, 2, 3, 4}, []int{sugs[0].Rank, sugs[1].Rank, sugs[2].Rank, sugs[3].Rank})

	sugs, err = m.Expand(context.Background(), "cat", module.Options{Params: map[string]string{"maxEditDistance": "1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"act", "coat", "cast"}, texts(sugs))
}

func TestExpandShortTerm(t *testing.T) {
	m, err := load(t, nil)
	require.NoError(t, err)

	sugs, err := m.Expand(context.Background(), "at", module.Options{})
	require.NoError(t, err)
	assert.Empty(t, sugs)
}

func TestAlphabetEquivalence(t *testing.T) {
	m, err := load(t, map[string]any{
		"file":     writeFile(t, "words.tsv", "café\t3\ncafes\t1\n"),
		"alphabet": writeFile(t, "alphabet.tsv", "a\nc\nf\ns\ne\té\tè\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, []rune{'a', 'c', 'e', 'f', 's'}, m.symbols)

	sugs, err := m.Expand(context.Background(), "cafe", module.Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"café", "cafes"}, texts(sugs))
	assert.Equal(t, 1.0, sugs[0].Score)
}

func TestNeighboursIncludeDeletionsAndInsertions(t *testing.T) {
	m := &Module{symbols: []rune{'a', 'b'}, maxAnagram: 1}
	got := m.neighbours("ab")
	for _, key := range []string{"ab", "a", "b", "aab", "abb"} {
		assert.Contains(t, got, key)
	}
	assert.Len(t, got, 5)
}

func TestSeveralLexiconsShareOneIndex(t *testing.T) {
	m, err := load(t, map[string]any{
		"file":  writeFile(t, "core.tsv", "cat\t1\nact\t1\n"),
		"files": []any{writeFile(t, "extra.tsv", "tac\t5\nact\t10\n")},
	})
	require.NoError(t, err)
	require.Len(t, m.entries, 3)
	for _, e := range m.entries {
		if e.Key == "act" {
			assert.Equal(t, uint64(11), e.Freq)
		}
	}

	sugs, err := m.Expand(context.Background(), "cat", module.Options{})
	require.NoError(t, err)
	assert.Subset(t, texts(sugs), []string{"act", "tac"})

	only, err := load(t, map[string]any{
		"file":  "",
		"files": []any{writeFile(t, "extra.tsv", "tac\t5\n")},
	})
	require.NoError(t, err)
	assert.Len(t, only.entries, 1)
}

func TestConfigErrors(t *testing.T) {
	_, err := load(t, map[string]any{"maxAnagramDistance": 9})
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = load(t, map[string]any{"file": writeFile(t, "empty.tsv", "# nothing\n")})
	assert.ErrorIs(t, err, apperrors.ErrLoad)

	_, err = load(t, map[string]any{"file": ""})
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}
