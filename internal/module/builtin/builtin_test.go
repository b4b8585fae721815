package builtin

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
)

func TestFactoriesCoverTypes(t *testing.T) {
	f := Factories()
	assert.Len(t, f, len(Types()))
	for _, typ := range Types() {
		assert.Contains(t, f, typ)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	syn := filepath.Join(dir, "synonyms.tsv")
	words := filepath.Join(dir, "words.txt")
	require.NoError(t, os.WriteFile(syn, []byte("cat\tkitten\tfeline\n"), 0o644))
	require.NoError(t, os.WriteFile(words, []byte("bat\ncar\ncat\ncut\n"), 0o644))

	cfg := &config.Config{Modules: []config.ModuleConfig{
		{ID: "syn", Name: "Synonyms", Type: "lookup", Params: map[string]any{"file": syn}},
		{ID: "spell", Type: "fst", Params: map[string]any{"file": words, "distance": 1}},
	}}
	reg, err := Load(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []module.Info{
		{ID: "syn", Name: "Synonyms", Type: "lookup"},
		{ID: "spell", Name: "spell", Type: "fst"},
	}, reg.List())

	m, ok := reg.Get("syn")
	require.True(t, ok)
	sugs, err := m.Expand(context.Background(), "cat", module.Options{})
	require.NoError(t, err)
	require.Len(t, sugs, 2)
	assert.Equal(t, "kitten", sugs[0].Text)
}

func TestLoadFailsOnMissingLexicon(t *testing.T) {
	cfg := &config.Config{Modules: []config.ModuleConfig{
		{ID: "syn", Type: "lookup", Params: map[string]any{"file": filepath.Join(t.TempDir(), "missing.tsv")}},
	}}
	_, err := Load(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, apperrors.IsStartupFatal(err))
}
