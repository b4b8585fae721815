// Package anagram implements lexical-similarity expansion over an
// anagram-hash index. Every lexicon word is indexed by the sorted multiset
// of its characters; candidate variants of a term are found by visiting the
// multisets reachable with a few character deletions and insertions, then
// verified with a real edit distance.
package anagram

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/lexicon"
)

const Type = "anagram"

// Params configures an anagram module.
//
// File and Files name the lexicons; several lexicons are merged into one
// index, summing the frequencies of shared words.
//
// Alphabet, when set, names a file whose lines list characters to treat as
// one symbol (tab-separated, e.g. "e\té\tè"). Without it the alphabet is the
// set of characters seen in the lexicon.
type Params struct {
	module.CommonParams `yaml:",inline"`
	File                string   `yaml:"file"`
	Files               []string `yaml:"files"`
	Alphabet            string `yaml:"alphabet"`
	SkipFirstLine       bool   `yaml:"skipFirstLine"`
	MaxAnagramDistance  int    `yaml:"maxAnagramDistance"`
	MaxEditDistance     int    `yaml:"maxEditDistance"`
	MinLength           int    `yaml:"minLength"`
	IncludeSelf         bool   `yaml:"includeSelf"`
}

type entry struct {
	lexicon.Entry
	canon string
}

type Module struct {
	module.Base
	entries     []entry
	index       map[string][]int
	symbols     []rune
	equiv       map[rune]rune
	maxAnagram  int
	maxEdit     int
	minLength   int
	includeSelf bool
}

// New is the module.Factory for anagram modules.
func New(ctx context.Context, cfg config.ModuleConfig, env module.Env) (module.Module, error) {
	p := Params{MaxAnagramDistance: 2, MaxEditDistance: 2, MinLength: 3}
	if err := module.DecodeParams(cfg, &p); err != nil {
		return nil, err
	}
	var locations []string
	for _, loc := range append([]string{p.File}, p.Files...) {
		if loc != "" {
			locations = append(locations, loc)
		}
	}
	if len(locations) == 0 {
		return nil, apperrors.Configf("module %s: file or files is required", cfg.ID)
	}
	if p.MaxAnagramDistance < 1 || p.MaxAnagramDistance > 4 {
		return nil, apperrors.Configf("module %s: maxAnagramDistance must be between 1 and 4", cfg.ID)
	}
	if p.MaxEditDistance < 1 {
		return nil, apperrors.Configf("module %s: maxEditDistance must be positive", cfg.ID)
	}
	base, err := module.NewBase(cfg, p.CommonParams)
	if err != nil {
		return nil, err
	}
	m := &Module{
		Base:        base,
		index:       make(map[string][]int),
		equiv:       make(map[rune]rune),
		maxAnagram:  p.MaxAnagramDistance,
		maxEdit:     p.MaxEditDistance,
		minLength:   p.MinLength,
		includeSelf: p.IncludeSelf,
	}

	if p.Alphabet != "" {
		if err := m.loadAlphabet(ctx, env, p.Alphabet); err != nil {
			return nil, err
		}
	}

	lists := make([][]lexicon.Entry, 0, len(locations))
	for _, loc := range locations {
		list, err := readLexicon(ctx, env, loc, p.SkipFirstLine, base.Normalize)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	words := lexicon.MergeWordlists(lists...)
	if len(words) == 0 {
		return nil, apperrors.Loadf("module %s: %s has no entries", cfg.ID, strings.Join(locations, ", "))
	}

	seen := make(map[rune]struct{})
	for _, s := range m.symbols {
		seen[s] = struct{}{}
	}
	m.entries = make([]entry, len(words))
	for i, w := range words {
		canon := m.canonical(w.Key)
		m.entries[i] = entry{Entry: w, canon: canon}
		key := anagramKey(canon)
		m.index[key] = append(m.index[key], i)
		if p.Alphabet == "" {
			for _, r := range canon {
				if _, ok := seen[r]; !ok {
					seen[r] = struct{}{}
					m.symbols = append(m.symbols, r)
				}
			}
		}
	}
	slices.Sort(m.symbols)

	if env.Logger != nil {
		env.Logger.Info("anagram index built",
			"module", cfg.ID,
			"lexicons", len(locations),
			"words", len(m.entries),
			"anagram_keys", len(m.index),
			"alphabet", len(m.symbols),
		)
	}
	return m, nil
}

func readLexicon(ctx context.Context, env module.Env, location string, skipFirst bool, normalize func(string) string) ([]lexicon.Entry, error) {
	rc, err := env.Lexicons.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return lexicon.ReadWordlist(rc, lexicon.LineOptions{SkipFirstLine: skipFirst, Comment: "#"}, normalize)
}

func (m *Module) loadAlphabet(ctx context.Context, env module.Env, location string) error {
	rc, err := env.Lexicons.Open(ctx, location)
	if err != nil {
		return err
	}
	defer rc.Close()
	return lexicon.ScanLines(rc, lexicon.LineOptions{Comment: "#"}, func(lineNo int, line string) error {
		var symbol rune = -1
		for _, field := range strings.Split(line, "\t") {
			field = m.Normalize(field)
			for _, r := range field {
				if symbol < 0 {
					symbol = r
					m.symbols = append(m.symbols, r)
				}
				m.equiv[r] = symbol
			}
		}
		if symbol < 0 {
			return apperrors.Loadf("%s line %d: empty alphabet entry", location, lineNo)
		}
		return nil
	})
}

// canonical maps every character to its alphabet representative.
func (m *Module) canonical(s string) string {
	if len(m.equiv) == 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if c, ok := m.equiv[r]; ok {
			return c
		}
		return r
	}, s)
}

func anagramKey(s string) string {
	rs := []rune(s)
	slices.Sort(rs)
	return string(rs)
}

type candidate struct {
	idx      int
	distance int
}

// Expand finds lexicon words whose character multiset lies within the
// anagram distance of the term and whose edit distance is within the
// configured maximum. Score is the similarity 1 - distance/length.
func (m *Module) Expand(ctx context.Context, term string, opts module.Options) ([]module.Suggestion, error) {
	norm := m.Normalize(term)
	q := m.canonical(norm)
	qlen := len([]rune(q))
	if qlen < m.minLength {
		return []module.Suggestion{}, nil
	}
	maxEdit := min(module.IntParam(opts, "maxEditDistance", m.maxEdit), m.maxEdit)

	var cands []candidate
	visited := 0
	for key := range m.neighbours(anagramKey(q)) {
		visited++
		if visited%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, idx := range m.index[key] {
			e := m.entries[idx]
			if e.Key == norm && !m.includeSelf {
				continue
			}
			d := module.EditDistance(q, e.canon, true)
			if d <= maxEdit {
				cands = append(cands, candidate{idx: idx, distance: d})
			}
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		ea, eb := m.entries[a.idx], m.entries[b.idx]
		if ea.Freq != eb.Freq {
			return ea.Freq > eb.Freq
		}
		return ea.Key < eb.Key
	})

	out := make([]module.Suggestion, 0, len(cands))
	for _, c := range cands {
		e := m.entries[c.idx]
		longest := max(qlen, len([]rune(e.canon)))
		out = append(out, module.Suggestion{
			Text:  e.Surface,
			Score: 1 - float64(c.distance)/float64(longest),
		})
	}
	return module.Finalize(m.ID(), out, m.K(opts)), nil
}

// neighbours returns every anagram key reachable from key with at most
// maxAnagram deletions plus insertions.
func (m *Module) neighbours(key string) map[string]struct{} {
	out := make(map[string]struct{})
	deleted := map[string]int{key: 0}
	frontier := []string{key}
	for d := 1; d <= m.maxAnagram; d++ {
		var next []string
		for _, k := range frontier {
			rs := []rune(k)
			for i := range rs {
				if i > 0 && rs[i] == rs[i-1] {
					continue
				}
				cut := string(slices.Delete(slices.Clone(rs), i, i+1))
				if _, ok := deleted[cut]; !ok {
					deleted[cut] = d
					next = append(next, cut)
				}
			}
		}
		frontier = next
	}
	for k, dels := range deleted {
		m.insert([]rune(k), 0, m.maxAnagram-dels, out)
	}
	return out
}

// insert adds to out every multiset formed by adding up to budget symbols
// with index >= from to base. Symbols are added in non-decreasing order so
// each multiset is produced once.
func (m *Module) insert(base []rune, from, budget int, out map[string]struct{}) {
	out[anagramKey(string(base))] = struct{}{}
	if budget == 0 {
		return
	}
	for i := from; i < len(m.symbols); i++ {
		m.insert(append(slices.Clone(base), m.symbols[i]), i, budget-1, out)
	}
}

// Len reports the number of lexicon words.
func (m *Module) Len() int {
	return len(m.entries)
}
