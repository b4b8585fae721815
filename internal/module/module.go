// Package module defines the capability contract shared by every expansion
// backend, and the Registry that owns the configured module instances for
// the lifetime of the process.
package module

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/text/cases"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
)

// Module is one configured expansion backend. Implementations are immutable
// after construction and must be safe for concurrent Expand calls.
//
// Expand returns at most the effective k suggestions, best first, with Rank
// starting at 1. No match is an empty slice and a nil error; errors are
// reserved for failures outside term matching and should wrap ErrBackend.
type Module interface {
	ID() string
	Name() string
	Type() string
	Expand(ctx context.Context, term string, opts Options) ([]Suggestion, error)
}

// Info is the public description of a module.
type Info struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// InfoOf describes m.
func InfoOf(m Module) Info {
	return Info{ID: m.ID(), Name: m.Name(), Type: m.Type()}
}

// Suggestion is one candidate expansion with its provenance. Score is the
// module's native score (distance, similarity, frequency) and is only
// comparable within one module; Rank is.
type Suggestion struct {
	Text       string  `json:"text"`
	Module     string  `json:"module"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
	Normalized float64 `json:"normalized,omitempty"`
}

// Options carries per-request overrides for one module. K == 0 selects the
// module default. Params holds module-specific overrides such as an edit
// distance; modules ignore keys they do not know.
type Options struct {
	K      int               `json:"k,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// Factory builds a module from its configuration.
type Factory func(ctx context.Context, cfg config.ModuleConfig, env Env) (Module, error)

// LexiconOpener opens a lexicon or model by location (path or URL).
type LexiconOpener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Env is what factories may use while loading.
type Env struct {
	Lexicons LexiconOpener
	Logger   *slog.Logger
}

// Finalize stamps module id and rank onto suggestions already sorted best
// first, truncating to k when k > 0.
func Finalize(id string, sugs []Suggestion, k int) []Suggestion {
	if k > 0 && len(sugs) > k {
		sugs = sugs[:k]
	}
	for i := range sugs {
		sugs[i].Module = id
		sugs[i].Rank = i + 1
	}
	return sugs
}

// Fold applies Unicode case folding. A Caser is stateful, so one is built
// per call.
func Fold(s string) string {
	return cases.Fold().String(s)
}
