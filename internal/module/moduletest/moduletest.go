// Package moduletest provides in-memory modules for tests of code that
// consumes the module contract.
package moduletest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
)

// Static answers from a fixed term -> expansions table, scoring each
// expansion by its position.
type Static struct {
	IDValue   string
	TypeValue string
	Table     map[string][]string
	// Delay is waited before answering, honouring ctx.
	Delay time.Duration
	// Err, when set, is returned for every term.
	Err error
	// FailTerms lists terms that fail with ErrBackend.
	FailTerms map[string]bool

	calls atomic.Int64
}

// NewStatic builds a Static lookup-style module.
func NewStatic(id string, table map[string][]string) *Static {
	return &Static{IDValue: id, TypeValue: "static", Table: table}
}

func (s *Static) ID() string   { return s.IDValue }
func (s *Static) Name() string { return "Static " + s.IDValue }
func (s *Static) Type() string { return s.TypeValue }

// Calls reports how many times Expand ran.
func (s *Static) Calls() int64 { return s.calls.Load() }

func (s *Static) Expand(ctx context.Context, term string, opts module.Options) ([]module.Suggestion, error) {
	s.calls.Add(1)
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.FailTerms[term] {
		return nil, apperrors.Backendf("%s: lexicon unavailable for %q", s.IDValue, term)
	}
	alts := s.Table[term]
	out := make([]module.Suggestion, 0, len(alts))
	for i, alt := range alts {
		out = append(out, module.Suggestion{Text: alt, Score: float64(len(alts) - i)})
	}
	return module.Finalize(s.IDValue, out, opts.K), nil
}
