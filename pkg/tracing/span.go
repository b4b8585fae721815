// Package tracing records in-process span trees for expansion requests and
// logs them through slog. A request gets a root span; the lexer, the
// dispatcher, every module call and the compositor add children.
//
// All Span methods are safe on a nil *Span, so code below the service can
// open child spans without checking whether a trace is active.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed operation in a trace.
type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	end      time.Time
	attrs    map[string]any
	err      error
	children []*Span
}

// Record is the flattened, loggable form of a span.
type Record struct {
	Name       string         `json:"name"`
	Depth      int            `json:"depth"`
	DurationMs float64        `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

func newSpan(name, traceID string) *Span {
	return &Span{name: name, traceID: traceID, start: time.Now()}
}

// StartSpan opens a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan opens a child of the span in ctx. Without an active span it
// returns ctx unchanged and a nil span.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := newSpan(name, parent.traceID)
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, child), child
}

// SpanFromContext returns the active span, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End stops the clock. Only the first call counts.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.end.IsZero() {
		s.end = time.Now()
	}
	s.mu.Unlock()
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.attrs == nil {
		s.attrs = make(map[string]any)
	}
	s.attrs[key] = value
	s.mu.Unlock()
}

// RecordError marks the span as failed. The first error is kept.
func (s *Span) RecordError(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

func (s *Span) TraceID() string {
	if s == nil {
		return ""
	}
	return s.traceID
}

// Duration is the elapsed time so far, or the final duration once ended.
func (s *Span) Duration() time.Duration {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		return time.Since(s.start)
	}
	return s.end.Sub(s.start)
}

// Attr returns one attribute.
func (s *Span) Attr(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Children returns a snapshot of the direct children in start order.
func (s *Span) Children() []*Span {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Flatten lists the tree depth-first, parents before children.
func (s *Span) Flatten() []Record {
	if s == nil {
		return nil
	}
	var out []Record
	s.flatten(0, &out)
	return out
}

func (s *Span) flatten(depth int, out *[]Record) {
	dur := s.Duration()
	s.mu.Lock()
	rec := Record{
		Name:       s.name,
		Depth:      depth,
		DurationMs: float64(dur.Microseconds()) / 1000,
	}
	if s.err != nil {
		rec.Error = s.err.Error()
	}
	if len(s.attrs) > 0 {
		rec.Attrs = make(map[string]any, len(s.attrs))
		for k, v := range s.attrs {
			rec.Attrs[k] = v
		}
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	*out = append(*out, rec)
	for _, c := range children {
		c.flatten(depth+1, out)
	}
}

// Log writes the whole tree as one debug record.
func (s *Span) Log(logger *slog.Logger) {
	if s == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("trace",
		"trace_id", s.traceID,
		"root", s.name,
		"duration_ms", s.Duration().Milliseconds(),
		"spans", s.Flatten(),
	)
}

// Sampled reports whether a trace should be logged at the given rate.
func Sampled(rate float64) bool {
	switch {
	case rate >= 1:
		return true
	case rate <= 0:
		return false
	default:
		return rand.Float64() < rate
	}
}
