// Package embedding implements semantic expansion from word embeddings.
// Vectors are read from the word2vec text format and indexed in an HNSW
// graph; a term expands to its nearest neighbours by cosine similarity.
package embedding

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/coder/hnsw"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/lexicon"
)

const Type = "embedding"

// Params configures an embedding module.
type Params struct {
	module.CommonParams `yaml:",inline"`
	File                string  `yaml:"file"`
	MinSimilarity       float64 `yaml:"minSimilarity"`
	M                   int     `yaml:"m"`
	EfSearch            int     `yaml:"efSearch"`
	Seed                int64   `yaml:"seed"`
}

type Module struct {
	module.Base
	graph         *hnsw.Graph[uint32]
	words         []string
	vectors       []hnsw.Vector
	ids           map[string]uint32
	minSimilarity float64
}

// New is the module.Factory for embedding modules. The graph is built once
// here and never modified afterwards, so concurrent searches need no lock.
func New(ctx context.Context, cfg config.ModuleConfig, env module.Env) (module.Module, error) {
	p := Params{M: 16, EfSearch: 64, Seed: 1}
	if err := module.DecodeParams(cfg, &p); err != nil {
		return nil, err
	}
	if p.File == "" {
		return nil, apperrors.Configf("module %s: file is required", cfg.ID)
	}
	if p.MinSimilarity < -1 || p.MinSimilarity > 1 {
		return nil, apperrors.Configf("module %s: minSimilarity must be within [-1, 1]", cfg.ID)
	}
	if p.M <= 0 || p.EfSearch <= 0 {
		return nil, apperrors.Configf("module %s: m and efSearch must be positive", cfg.ID)
	}
	base, err := module.NewBase(cfg, p.CommonParams)
	if err != nil {
		return nil, err
	}

	graph := hnsw.NewGraph[uint32]()
	graph.Distance = hnsw.CosineDistance
	graph.M = p.M
	graph.EfSearch = p.EfSearch
	graph.Ml = 0.25
	graph.Rng = rand.New(rand.NewSource(p.Seed))

	m := &Module{
		Base:          base,
		graph:         graph,
		ids:           make(map[string]uint32),
		minSimilarity: p.MinSimilarity,
	}

	rc, err := env.Lexicons.Open(ctx, p.File)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dim, zero := 0, 0
	err = lexicon.ScanLines(rc, lexicon.LineOptions{}, func(lineNo int, line string) error {
		fields := strings.Fields(line)
		if lineNo == 1 && len(fields) == 2 && isInt(fields[0]) && isInt(fields[1]) {
			dim, _ = strconv.Atoi(fields[1])
			return nil
		}
		if len(fields) < 2 {
			return apperrors.Loadf("%s line %d: expected a word and a vector", p.File, lineNo)
		}
		if dim == 0 {
			dim = len(fields) - 1
		}
		if len(fields)-1 != dim {
			return apperrors.Loadf("%s line %d: vector has %d dimensions, want %d", p.File, lineNo, len(fields)-1, dim)
		}
		key := m.Normalize(fields[0])
		if _, dup := m.ids[key]; dup {
			return nil
		}
		vec := make(hnsw.Vector, dim)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return apperrors.Loadf("%s line %d: bad component %q", p.File, lineNo, f)
			}
			vec[i] = float32(v)
		}
		// a zero vector has no direction, so no cosine similarity
		if !normalizeInPlace(vec) {
			zero++
			return nil
		}

		id := uint32(len(m.words))
		m.ids[key] = id
		m.words = append(m.words, fields[0])
		m.vectors = append(m.vectors, vec)
		m.graph.Add(hnsw.MakeNode(id, vec))
		if id%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return apperrors.Loadf("module %s: %v", cfg.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(m.words) == 0 {
		return nil, apperrors.Loadf("module %s: %s has no vectors", cfg.ID, p.File)
	}
	if env.Logger != nil {
		env.Logger.Info("embeddings indexed", "module", cfg.ID, "words", len(m.words), "dimensions", dim)
		if zero > 0 {
			env.Logger.Warn("skipped zero vectors", "module", cfg.ID, "count", zero)
		}
	}
	return m, nil
}

// Expand returns the nearest neighbours of term by cosine similarity.
// Unknown terms have no neighbours. The "minSimilarity" parameter may raise
// the configured similarity floor for one request.
func (m *Module) Expand(ctx context.Context, term string, opts module.Options) ([]module.Suggestion, error) {
	key := m.Normalize(term)
	id, ok := m.ids[key]
	if !ok {
		return []module.Suggestion{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := m.K(opts)
	floor := max(module.FloatParam(opts, "minSimilarity", m.minSimilarity), m.minSimilarity)

	query := m.vectors[id]
	nodes := m.graph.Search(query, k+1)

	out := make([]module.Suggestion, 0, len(nodes))
	for _, n := range nodes {
		if n.Key == id {
			continue
		}
		sim := 1 - float64(m.graph.Distance(query, n.Value))
		if math.IsNaN(sim) || sim < floor {
			continue
		}
		out = append(out, module.Suggestion{Text: m.words[n.Key], Score: sim})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Text < out[j].Text
	})
	return module.Finalize(m.ID(), out, k), nil
}

// Len reports the number of indexed words.
func (m *Module) Len() int {
	return len(m.words)
}

// normalizeInPlace scales v to unit length. It reports false, leaving v
// untouched, when v has zero length.
func normalizeInPlace(v hnsw.Vector) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsInf(sum, 0) {
		return false
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return true
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
