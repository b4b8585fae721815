// Package fst implements the edit-distance expansion module: the lexicon is
// compiled into a finite-state transducer and searched with a Levenshtein
// automaton built per term.
package fst

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/blevesearch/vellum"
	"github.com/blevesearch/vellum/levenshtein"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/lexicon"
)

const (
	Type = "fst"

	// MaxDistance is the largest edit distance an automaton is built for.
	MaxDistance = 2
)

// Params configures an fst module. The file is a wordlist with an optional
// tab-separated frequency column; it need not be sorted.
type Params struct {
	module.CommonParams `yaml:",inline"`
	File                string `yaml:"file"`
	Distance            *int   `yaml:"distance"`
	Transpositions      bool   `yaml:"transpositions"`
	SkipFirstLine       bool   `yaml:"skipFirstLine"`
	IncludeSelf         bool   `yaml:"includeSelf"`
}

type Module struct {
	module.Base
	fst            *vellum.FST
	entries        []lexicon.Entry
	distance       int
	transpositions bool
	includeSelf    bool
	// builders[d] builds automata for distance d; index 0 is unused.
	builders []*levenshtein.LevenshteinAutomatonBuilder
}

// New is the module.Factory for fst modules.
func New(ctx context.Context, cfg config.ModuleConfig, env module.Env) (module.Module, error) {
	var p Params
	if err := module.DecodeParams(cfg, &p); err != nil {
		return nil, err
	}
	if p.File == "" {
		return nil, apperrors.Configf("module %s: file is required", cfg.ID)
	}
	distance := 1
	if p.Distance != nil {
		distance = *p.Distance
	}
	if distance < 0 || distance > MaxDistance {
		return nil, apperrors.Configf("module %s: distance must be between 0 and %d", cfg.ID, MaxDistance)
	}
	base, err := module.NewBase(cfg, p.CommonParams)
	if err != nil {
		return nil, err
	}

	rc, err := env.Lexicons.Open(ctx, p.File)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	entries, err := lexicon.ReadWordlist(rc, lexicon.LineOptions{SkipFirstLine: p.SkipFirstLine, Comment: "#"}, base.Normalize)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.Loadf("module %s: %s has no entries", cfg.ID, p.File)
	}

	fst, err := build(entries)
	if err != nil {
		return nil, apperrors.Loadf("module %s: building transducer: %v", cfg.ID, err)
	}
	m := &Module{
		Base:           base,
		fst:            fst,
		entries:        entries,
		distance:       distance,
		transpositions: p.Transpositions,
		includeSelf:    p.IncludeSelf,
		builders:       make([]*levenshtein.LevenshteinAutomatonBuilder, distance+1),
	}
	for d := 1; d <= distance; d++ {
		lb, err := levenshtein.NewLevenshteinAutomatonBuilder(uint8(d), p.Transpositions)
		if err != nil {
			return nil, apperrors.Configf("module %s: levenshtein builder: %v", cfg.ID, err)
		}
		m.builders[d] = lb
	}
	if env.Logger != nil {
		env.Logger.Info("fst lexicon compiled", "module", cfg.ID, "words", len(entries), "distance", distance)
	}
	return m, nil
}

// build compiles sorted entries into an in-memory FST whose values index
// back into entries.
func build(entries []lexicon.Entry) (*vellum.FST, error) {
	var buf bytes.Buffer
	b, err := vellum.New(&buf, nil)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		if err := b.Insert([]byte(e.Key), uint64(i)); err != nil {
			return nil, err
		}
	}
	if err := b.Close(); err != nil {
		return nil, err
	}
	return vellum.Load(buf.Bytes())
}

type candidate struct {
	entry    lexicon.Entry
	distance int
}

// Expand returns lexicon words within the edit distance of term, closest
// first, then by frequency. The request may lower the distance through the
// "distance" parameter but never raise it above the configured value.
func (m *Module) Expand(ctx context.Context, term string, opts module.Options) ([]module.Suggestion, error) {
	key := m.Normalize(term)
	distance := module.IntParam(opts, "distance", m.distance)
	if distance > m.distance {
		distance = m.distance
	}
	if distance < 0 {
		distance = 0
	}

	var cands []candidate
	if distance == 0 {
		if v, ok, err := m.fst.Get([]byte(key)); err != nil {
			return nil, apperrors.Backendf("module %s: %v", m.ID(), err)
		} else if ok {
			cands = append(cands, candidate{entry: m.entries[v]})
		}
	} else {
		dfa, err := m.builders[distance].BuildDfa(key, uint8(distance))
		if err != nil {
			// Terms the automaton cannot represent have no neighbours.
			return []module.Suggestion{}, nil
		}
		itr, err := m.fst.Search(dfa, nil, nil)
		for err == nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			_, v := itr.Current()
			e := m.entries[v]
			cands = append(cands, candidate{entry: e, distance: module.EditDistance(key, e.Key, m.transpositions)})
			err = itr.Next()
		}
		if !errors.Is(err, vellum.ErrIteratorDone) {
			return nil, apperrors.Backendf("module %s: searching transducer: %v", m.ID(), err)
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if a.entry.Freq != b.entry.Freq {
			return a.entry.Freq > b.entry.Freq
		}
		return a.entry.Key < b.entry.Key
	})

	out := make([]module.Suggestion, 0, len(cands))
	for _, c := range cands {
		if c.entry.Key == key && !m.includeSelf {
			continue
		}
		out = append(out, module.Suggestion{Text: c.entry.Surface, Score: float64(c.distance)})
	}
	return module.Finalize(m.ID(), out, m.K(opts)), nil
}

// Len reports the number of lexicon words.
func (m *Module) Len() int {
	return len(m.entries)
}
