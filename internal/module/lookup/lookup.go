// Package lookup implements the hash-lookup expansion module: a delimited
// variant list mapping each keyword to its alternatives, held in memory.
package lookup

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/lexicon"
)

const Type = "lookup"

// Params configures a lookup module. Each row is
// keyword<Delimiter>variant<Delimiter2>variant...
type Params struct {
	module.CommonParams `yaml:",inline"`
	File                string `yaml:"file"`
	Delimiter           string `yaml:"delimiter"`
	Delimiter2          string `yaml:"delimiter2"`
	SkipFirstLine       bool   `yaml:"skipFirstLine"`
	// AllowNumeric keeps purely numeric fields, which are otherwise
	// treated as frequency or score columns and dropped.
	AllowNumeric bool `yaml:"allowNumeric"`
}

type Module struct {
	module.Base
	variants map[string][]string
}

// New is the module.Factory for lookup modules.
func New(ctx context.Context, cfg config.ModuleConfig, env module.Env) (module.Module, error) {
	var p Params
	if err := module.DecodeParams(cfg, &p); err != nil {
		return nil, err
	}
	if p.File == "" {
		return nil, apperrors.Configf("module %s: file is required", cfg.ID)
	}
	delim, err := delimiter(cfg.ID, "delimiter", p.Delimiter, '\t')
	if err != nil {
		return nil, err
	}
	delim2, err := delimiter(cfg.ID, "delimiter2", p.Delimiter2, delim)
	if err != nil {
		return nil, err
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

	m := &Module{Base: base, variants: make(map[string][]string)}
	err = lexicon.ScanLines(rc, lexicon.LineOptions{SkipFirstLine: p.SkipFirstLine, Comment: "#"}, func(lineNo int, line string) error {
		keyword, rest, _ := strings.Cut(line, string(delim))
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			return apperrors.Loadf("%s line %d: empty keyword", p.File, lineNo)
		}
		key := m.Normalize(keyword)
		for _, v := range strings.Split(rest, string(delim2)) {
			v = strings.TrimSpace(v)
			if v == "" || (!p.AllowNumeric && isNumeric(v)) {
				continue
			}
			m.add(key, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if env.Logger != nil {
		env.Logger.Info("lookup lexicon loaded", "module", cfg.ID, "keywords", len(m.variants))
	}
	return m, nil
}

// add appends v to the variants of key, once.
func (m *Module) add(key, v string) {
	for _, existing := range m.variants[key] {
		if existing == v {
			return
		}
	}
	m.variants[key] = append(m.variants[key], v)
}

// Expand returns the variants listed for term in file order. Lookup has no
// native score, so every suggestion scores 1.
func (m *Module) Expand(ctx context.Context, term string, opts module.Options) ([]module.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	variants := m.variants[m.Normalize(term)]
	out := make([]module.Suggestion, 0, len(variants))
	for _, v := range variants {
		out = append(out, module.Suggestion{Text: v, Score: 1})
	}
	return module.Finalize(m.ID(), out, m.K(opts)), nil
}

// Len reports the number of keywords.
func (m *Module) Len() int {
	return len(m.variants)
}

func delimiter(id, name, value string, def rune) (rune, error) {
	if value == "" {
		return def, nil
	}
	if value == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(value)
	if size != len(value) {
		return 0, apperrors.Configf("module %s: %s must be a single character, got %q", id, name, value)
	}
	return r, nil
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
