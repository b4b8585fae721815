package lookup

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

const synonyms = `# keyword	variants
separate	separated	separates	split	apart	divide	divided
cat	kitten	feline	12
Cat	tomcat
dog	puppy	0.5	hound
`

func load(t *testing.T, data string, params map[string]any) (*Module, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lookup.tsv")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	if params == nil {
		params = map[string]any{}
	}
	params["file"] = path

	src, err := lexicon.NewSource(config.StorageConfig{})
	require.NoError(t, err)
	m, err := New(context.Background(), config.ModuleConfig{ID: "lookup", Name: "Lookup", Type: Type, Params: params}, module.Env{Lexicons: src})
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

func TestExpand(t *testing.T) {
	m, err := load(t, synonyms, nil)
	require.NoError(t, err)

	sugs, err := m.Expand(context.Background(), "separate", module.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"separated", "separates", "split", "apart", "divide", "divided"}, texts(sugs))
	for i, s := range sugs {
		assert.Equal(t, "lookup", s.Module)
		assert.Equal(t, i+1, s.Rank)
		assert.Equal(t, 1.0, s.Score)
	}
}

func TestExpandCaseInsensitiveMergesRows(t *testing.T) {
	m, err := load(t, synonyms, nil)
	require.NoError(t, err)

	sugs, err := m.Expand(context.Background(), "CAT", module.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"kitten", "feline", "tomcat"}, texts(sugs), "numeric column dropped, rows merged")
}

func TestExpandCaseSensitive(t *testing.T) {
	m, err := load(t, synonyms, map[string]any{"caseSensitive": true})
	require.NoError(t, err)

	sugs, err := m.Expand(context.Background(), "Cat", module.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"tomcat"}, texts(sugs))

	sugs, err = m.Expand(context.Background(), "CAT", module.Options{})
	require.NoError(t, err)
	assert.Empty(t, sugs)
}

func TestAllowNumeric(t *testing.T) {
	m, err := load(t, synonyms, map[string]any{"allowNumeric": true})
	require.NoError(t, err)

	sugs, err := m.Expand(context.Background(), "dog", module.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"puppy", "0.5", "hound"}, texts(sugs))
}

func TestTopK(t *testing.T) {
	m, err := load(t, synonyms, map[string]any{"k": 2, "maxK": 4})
	require.NoError(t, err)
	ctx := context.Background()

	sugs, _ := m.Expand(ctx, "separate", module.Options{})
	assert.Len(t, sugs, 2)
	sugs, _ = m.Expand(ctx, "separate", module.Options{K: 3})
	assert.Len(t, sugs, 3)
	sugs, _ = m.Expand(ctx, "separate", module.Options{K: 50})
	assert.Len(t, sugs, 4, "override capped at maxK")
}

func TestNoMatch(t *testing.T) {
	m, err := load(t, synonyms, nil)
	require.NoError(t, err)

	sugs, err := m.Expand(context.Background(), "blah", module.Options{})
	require.NoError(t, err)
	assert.Empty(t, sugs)
}

func TestCustomDelimiters(t *testing.T) {
	m, err := load(t, "header\ncolour;color,hue\n", map[string]any{
		"delimiter":     ";",
		"delimiter2":    ",",
		"skipFirstLine": true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	sugs, err := m.Expand(context.Background(), "colour", module.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"color", "hue"}, texts(sugs))
}

func TestLoadErrors(t *testing.T) {
	_, err := load(t, "\tkitten\n", nil)
	assert.ErrorIs(t, err, apperrors.ErrLoad, "empty keyword")

	_, err = load(t, synonyms, map[string]any{"delimiter": "::"})
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = load(t, synonyms, map[string]any{"unknown": true})
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestExpandCancelled(t *testing.T) {
	m, err := load(t, synonyms, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Expand(ctx, "cat", module.Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
