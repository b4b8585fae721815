// Package expander ties the pipeline together: lex the query, resolve the
// requested modules, dispatch every term, and compose the expanded query.
package expander

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/compositor"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/dispatcher"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/merger"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/tracing"
)

// DefaultMaxQueryLength bounds the query size in bytes.
const DefaultMaxQueryLength = 4096

// EventSink receives one event per served request. *analytics.Collector
// implements it.
type EventSink interface {
	Track(event analytics.ExpansionEvent)
}

// Request is one expansion request. Include, when non-empty, wins over
// Exclude.
type Request struct {
	Query     string
	Include   []string
	Exclude   []string
	Overrides dispatcher.Overrides
	Accept    func(term string, e merger.Expansion) bool
}

type Service struct {
	registry   *module.Registry
	dispatcher *dispatcher.Dispatcher
	metrics    *metrics.Metrics
	sink       EventSink
	sampleRate float64
	maxQuery   int
	logger     *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithTracing logs the span tree of the given fraction of requests.
func WithTracing(sampleRate float64) Option {
	return func(s *Service) { s.sampleRate = sampleRate }
}

func WithMaxQueryLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxQuery = n
		}
	}
}

func New(reg *module.Registry, d *dispatcher.Dispatcher, opts ...Option) *Service {
	s := &Service{
		registry:   reg,
		dispatcher: d,
		maxQuery:   DefaultMaxQueryLength,
		logger:     slog.Default().With("component", "expander"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics != nil {
		s.metrics.ModulesLoaded.Set(float64(reg.Len()))
	}
	return s
}

// ExpandQuery runs the full pipeline. A malformed query fails with a
// *query.SyntaxError; failing modules only add diagnostics.
func (s *Service) ExpandQuery(ctx context.Context, req Request) (*compositor.ExpandedQuery, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		s.outcome("invalid")
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query must not be empty")
	}
	if len(req.Query) > s.maxQuery {
		s.outcome("invalid")
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "query exceeds %d bytes", s.maxQuery)
	}

	ctx, root := tracing.StartSpan(ctx, "expand_query", logger.RequestID(ctx))
	defer func() {
		root.End()
		if tracing.Sampled(s.sampleRate) {
			root.Log(s.logger)
		}
	}()

	_, lexSpan := tracing.StartChildSpan(ctx, "lex")
	tokens, err := query.Tokenize(req.Query)
	lexSpan.SetAttr("tokens", len(tokens))
	lexSpan.RecordError(err)
	lexSpan.End()
	if err != nil {
		root.RecordError(err)
		s.outcome("syntax_error")
		return nil, err
	}

	modules := s.registry.Resolve(req.Include, req.Exclude)

	dctx, dispatchSpan := tracing.StartChildSpan(ctx, "dispatch")
	results, diags := s.dispatcher.Expand(dctx, tokens, modules, req.Overrides)
	dispatchSpan.SetAttr("modules", len(modules))
	dispatchSpan.SetAttr("terms", len(results))
	dispatchSpan.SetAttr("failures", len(diags))
	dispatchSpan.End()

	if err := ctx.Err(); err != nil {
		s.outcome("cancelled")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.New(apperrors.ErrTimeout, http.StatusGatewayTimeout, "expansion deadline exceeded")
		}
		return nil, err
	}

	_, composeSpan := tracing.StartChildSpan(ctx, "compose")
	eq := compositor.Compose(tokens, results, compositor.Options{Accept: req.Accept})
	composeSpan.End()
	if diags == nil {
		diags = []dispatcher.Diagnostic{}
	}
	eq.Diagnostics = diags

	outcome := analytics.OutcomeOK
	if len(diags) > 0 {
		outcome = analytics.OutcomePartial
	}
	elapsed := time.Since(start)
	s.outcome(string(outcome))
	if s.metrics != nil {
		s.metrics.ExpansionLatency.Observe(elapsed.Seconds())
	}
	s.track(ctx, req.Query, modules, &eq, outcome, elapsed)

	logger.FromContext(ctx).Info("query expanded",
		"query", req.Query,
		"terms", len(results),
		"modules", len(modules),
		"failures", len(diags),
		"latency_ms", elapsed.Milliseconds(),
	)
	return &eq, nil
}

// ListModules describes the registered modules in registration order.
func (s *Service) ListModules() []module.Info {
	return s.registry.List()
}

func (s *Service) outcome(o string) {
	if s.metrics != nil {
		s.metrics.ExpansionRequestsTotal.WithLabelValues(o).Inc()
	}
}

func (s *Service) track(ctx context.Context, raw string, modules []module.Module, eq *compositor.ExpandedQuery, outcome analytics.Outcome, elapsed time.Duration) {
	if s.sink == nil {
		return
	}
	event := analytics.ExpansionEvent{
		ID:        analytics.NewEventID(),
		RequestID: logger.RequestID(ctx),
		Outcome:   outcome,
		Query:     raw,
		Terms:     make([]string, 0, len(eq.Results)),
		Modules:   make([]string, 0, len(modules)),
		LatencyMs: elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	for _, m := range modules {
		event.Modules = append(event.Modules, m.ID())
	}
	for _, r := range eq.Results {
		event.Terms = append(event.Terms, r.Term)
		event.Suggestions += len(r.Suggestions)
		if len(r.Suggestions) == 0 {
			event.ZeroSuggestionTerms = append(event.ZeroSuggestionTerms, r.Term)
		}
	}
	seen := make(map[string]struct{})
	for _, d := range eq.Diagnostics {
		if _, dup := seen[d.Module]; dup {
			continue
		}
		seen[d.Module] = struct{}{}
		if d.TimedOut {
			event.TimedOutModules = append(event.TimedOutModules, d.Module)
		} else {
			event.FailedModules = append(event.FailedModules, d.Module)
		}
	}
	s.sink.Track(event)
}
