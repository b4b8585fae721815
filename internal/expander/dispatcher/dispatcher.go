// Package dispatcher fans expandable query terms out to expansion modules
// and merges their answers per term. Every distinct (term, module) pair is
// one unit of work; results are written to pre-assigned slots so the output
// follows token order no matter which calls finish first.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/merger"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/ranker"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/query"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/tracing"
)

// Cache memoises module answers. compute is only invoked on a miss.
type Cache interface {
	GetOrCompute(ctx context.Context, term, moduleID string, opts module.Options, compute func(ctx context.Context) ([]module.Suggestion, error)) ([]module.Suggestion, error)
}

type Config struct {
	TopN          int
	ModuleTimeout time.Duration
	Concurrency   int
	Normalize     bool
	Breaker       config.BreakerConfig
}

// ConfigFrom adapts the expansion section of the service configuration.
func ConfigFrom(c config.ExpansionConfig) Config {
	return Config{
		TopN:          c.TopN,
		ModuleTimeout: c.ModuleTimeout,
		Concurrency:   c.Concurrency,
		Normalize:     c.Normalize,
		Breaker:       c.Breaker,
	}
}

// Overrides are per-request adjustments. TopN and K of zero keep the
// configured defaults; an entry in Modules replaces K and supplies
// parameters for that module only.
type Overrides struct {
	TopN    int                       `json:"top,omitempty"`
	K       int                       `json:"k,omitempty"`
	Modules map[string]module.Options `json:"modules,omitempty"`
}

// ExpansionResult holds the merged suggestions for one expandable token.
type ExpansionResult struct {
	Term        string              `json:"term"`
	Field       string              `json:"field,omitempty"`
	Index       int                 `json:"index"`
	Start       int                 `json:"start"`
	End         int                 `json:"end"`
	Suggestions []module.Suggestion `json:"suggestions"`
	Expansions  []merger.Expansion  `json:"expansions"`
}

// Diagnostic records a module that could not answer for a term.
type Diagnostic struct {
	Term     string `json:"term"`
	Module   string `json:"module"`
	Error    string `json:"error"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

type Dispatcher struct {
	cfg     Config
	cache   Cache
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// New creates a Dispatcher. cache and m may be nil.
func New(cfg Config, cache Cache, m *metrics.Metrics) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	return &Dispatcher{
		cfg:      cfg,
		cache:    cache,
		metrics:  m,
		logger:   slog.Default().With("component", "dispatcher"),
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

type slot struct {
	sugs []module.Suggestion
	err  error
}

// Expand computes one ExpansionResult per expandable token, in token order.
// Module failures never fail the call; each becomes a Diagnostic and an
// empty contribution. With no modules every term gets an empty result.
func (d *Dispatcher) Expand(ctx context.Context, tokens []query.Token, modules []module.Module, ov Overrides) ([]ExpansionResult, []Diagnostic) {
	var positions []int
	var terms []string
	termIndex := make(map[string]int)
	for i, tok := range tokens {
		if !tok.Expandable() {
			continue
		}
		positions = append(positions, i)
		if _, ok := termIndex[tok.Value]; !ok {
			termIndex[tok.Value] = len(terms)
			terms = append(terms, tok.Value)
		}
	}

	opts := make([]module.Options, len(modules))
	for j, m := range modules {
		opts[j] = optionsFor(m.ID(), ov)
	}

	slots := make([]slot, len(terms)*len(modules))
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for ti, term := range terms {
		for mi, m := range modules {
			idx := ti*len(modules) + mi
			g.Go(func() error {
				sugs, err := d.call(ctx, term, m, opts[mi])
				slots[idx] = slot{sugs: sugs, err: err}
				return nil
			})
		}
	}
	_ = g.Wait()

	var diags []Diagnostic
	for ti, term := range terms {
		for mi, m := range modules {
			if err := slots[ti*len(modules)+mi].err; err != nil {
				diags = append(diags, Diagnostic{
					Term:     term,
					Module:   m.ID(),
					Error:    err.Error(),
					TimedOut: errors.Is(err, apperrors.ErrTimeout),
				})
			}
		}
	}

	topN := d.cfg.TopN
	if ov.TopN > 0 {
		topN = ov.TopN
	}
	results := make([]ExpansionResult, len(positions))
	for i, pos := range positions {
		tok := tokens[pos]
		ti := termIndex[tok.Value]
		perModule := make([][]module.Suggestion, len(modules))
		for mi := range modules {
			perModule[mi] = slots[ti*len(modules)+mi].sugs
		}
		merged := merger.Merge(perModule, topN)
		if d.cfg.Normalize {
			ranker.Normalize(merged)
		}
		if d.metrics != nil {
			d.metrics.SuggestionsPerTerm.Observe(float64(len(merged)))
		}
		groups := merger.Group(merged)
		if d.cfg.Normalize {
			for gi := range groups {
				groups[gi].Score = ranker.Fuse(groups[gi].Sources)
			}
		}
		results[i] = ExpansionResult{
			Term:        tok.Value,
			Field:       query.FieldOf(tokens, pos),
			Index:       pos,
			Start:       tok.Start,
			End:         tok.End,
			Suggestions: merged,
			Expansions:  groups,
		}
	}

	if len(diags) > 0 {
		logger.FromContext(ctx).Warn("modules failed during expansion",
			"failures", len(diags),
			"terms", len(terms),
			"modules", len(modules),
		)
	}
	return results, diags
}

// call runs one module for one term behind the cache, the module's breaker
// and the per-call deadline. The returned slice is private to the caller.
func (d *Dispatcher) call(ctx context.Context, term string, m module.Module, opts module.Options) ([]module.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := tracing.StartChildSpan(ctx, "module")
	span.SetAttr("module", m.ID())
	span.SetAttr("term", term)
	defer span.End()

	compute := func(ctx context.Context) ([]module.Suggestion, error) {
		return d.invoke(ctx, term, m, opts)
	}
	var (
		sugs []module.Suggestion
		err  error
	)
	if d.cache != nil {
		sugs, err = d.cache.GetOrCompute(ctx, term, m.ID(), opts, compute)
	} else {
		sugs, err = compute(ctx)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttr("suggestions", len(sugs))
	out := make([]module.Suggestion, len(sugs))
	copy(out, sugs)
	return out, nil
}

func (d *Dispatcher) invoke(ctx context.Context, term string, m module.Module, opts module.Options) ([]module.Suggestion, error) {
	start := time.Now()
	var sugs []module.Suggestion
	run := func() error {
		return resilience.WithTimeout(ctx, d.cfg.ModuleTimeout, "module "+m.ID(), func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = apperrors.Backendf("module %s panicked: %v", m.ID(), r)
				}
			}()
			out, err := m.Expand(ctx, term, opts)
			if err != nil {
				return err
			}
			sugs = out
			return nil
		})
	}

	var err error
	if br := d.breaker(m.ID()); br != nil {
		err = br.Execute(run)
	} else {
		err = run()
	}
	if err != nil {
		d.observe(m.ID(), start, 0, err)
		if !errors.Is(err, apperrors.ErrBackend) && !errors.Is(err, apperrors.ErrTimeout) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", apperrors.ErrBackend, err)
		}
		return nil, err
	}
	d.observe(m.ID(), start, len(sugs), nil)
	if sugs == nil {
		sugs = []module.Suggestion{}
	}
	return sugs, nil
}

func (d *Dispatcher) breaker(id string) *resilience.CircuitBreaker {
	if !d.cfg.Breaker.Enabled {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if br, ok := d.breakers[id]; ok {
		return br
	}
	br := resilience.NewCircuitBreaker(id, resilience.CircuitBreakerConfig{
		FailureThreshold:    d.cfg.Breaker.FailureThreshold,
		ResetTimeout:        d.cfg.Breaker.ResetTimeout,
		HalfOpenMaxRequests: d.cfg.Breaker.HalfOpenMaxCalls,
		OnStateChange: func(name string, to resilience.State) {
			if d.metrics != nil {
				d.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	d.breakers[id] = br
	return br
}

func (d *Dispatcher) observe(id string, start time.Time, n int, err error) {
	if d.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = "open"
	case errors.Is(err, apperrors.ErrTimeout):
		status = "timeout"
	case err != nil:
		status = "error"
	case n == 0:
		status = "empty"
	}
	d.metrics.ModuleCallsTotal.WithLabelValues(id, status).Inc()
	d.metrics.ModuleLatency.WithLabelValues(id).Observe(time.Since(start).Seconds())
}

// BreakerStates reports the state of every breaker created so far.
func (d *Dispatcher) BreakerStates() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.breakers))
	for id, br := range d.breakers {
		out[id] = br.GetState().String()
	}
	return out
}

func optionsFor(id string, ov Overrides) module.Options {
	opts := module.Options{K: ov.K}
	if o, ok := ov.Modules[id]; ok {
		if o.K > 0 {
			opts.K = o.K
		}
		opts.Params = o.Params
	}
	return opts
}
