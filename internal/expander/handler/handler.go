// Package handler exposes the expansion service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/cache"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/compositor"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/expander/dispatcher"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/module"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/logger"
)

// maxResolveBody bounds POST /api/v1/resolve payloads.
const maxResolveBody = 1 << 20

// Expander is the service behind the handlers. *expander.Service implements it.
type Expander interface {
	ExpandQuery(ctx context.Context, req expander.Request) (*compositor.ExpandedQuery, error)
	ListModules() []module.Info
}

// SuggestionCache is the optional cache administration surface.
type SuggestionCache interface {
	Stats() cache.Stats
	Invalidate(ctx context.Context) error
}

// BreakerReporter exposes per-module circuit breaker states.
type BreakerReporter interface {
	BreakerStates() map[string]string
}

type Handler struct {
	service  Expander
	cache    SuggestionCache
	breakers BreakerReporter
	logger   *slog.Logger
}

// New builds the handlers. suggestionCache and breakers may be nil.
func New(service Expander, suggestionCache SuggestionCache, breakers BreakerReporter) *Handler {
	return &Handler{
		service:  service,
		cache:    suggestionCache,
		breakers: breakers,
		logger:   slog.Default().With("component", "expand-handler"),
	}
}

type expandResponse struct {
	*compositor.ExpandedQuery
	TookMs int64 `json:"took_ms"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Position *int   `json:"position,omitempty"`
}

// Expand serves GET / and GET /api/v1/expand.
func (h *Handler) Expand(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params := r.URL.Query()

	q := params.Get("q")
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	ov, err := parseOverrides(params)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	eq, err := h.service.ExpandQuery(r.Context(), expander.Request{
		Query:     q,
		Include:   splitList(params.Get("include")),
		Exclude:   splitList(params.Get("exclude")),
		Overrides: ov,
	})
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, expandResponse{
		ExpandedQuery: eq,
		TookMs:        time.Since(start).Milliseconds(),
	})
}

// Modules serves GET /modules and GET /api/v1/modules.
func (h *Handler) Modules(w http.ResponseWriter, r *http.Request) {
	mods := h.service.ListModules()
	if mods == nil {
		mods = []module.Info{}
	}
	h.writeJSON(w, http.StatusOK, mods)
}

// Breakers reports the circuit breaker state of every module called so far.
func (h *Handler) Breakers(w http.ResponseWriter, r *http.Request) {
	if h.breakers == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{})
		return
	}
	h.writeJSON(w, http.StatusOK, h.breakers.BreakerStates())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

type resolveRequest struct {
	Template   string              `json:"template"`
	Expansions map[string][]string `json:"expansions"`
}

// Resolve fills a query_expansion_template with caller-chosen alternatives.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxResolveBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Template == "" {
		h.writeError(w, http.StatusBadRequest, "template is required")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"query": compositor.Resolve(req.Template, req.Expansions),
	})
}

// parseOverrides reads top, k and the dotted <module>.<param> parameters.
func parseOverrides(params map[string][]string) (dispatcher.Overrides, error) {
	var ov dispatcher.Overrides
	for key, vals := range params {
		if len(vals) == 0 {
			continue
		}
		val := vals[len(vals)-1]
		switch key {
		case "q", "include", "exclude":
			continue
		case "top":
			n, err := nonNegative(key, val)
			if err != nil {
				return ov, err
			}
			ov.TopN = n
			continue
		case "k":
			n, err := nonNegative(key, val)
			if err != nil {
				return ov, err
			}
			ov.K = n
			continue
		}

		id, param, ok := strings.Cut(key, ".")
		if !ok || id == "" || param == "" {
			continue
		}
		if ov.Modules == nil {
			ov.Modules = make(map[string]module.Options)
		}
		opts := ov.Modules[id]
		if param == "k" {
			n, err := nonNegative(key, val)
			if err != nil {
				return ov, err
			}
			opts.K = n
		} else {
			if opts.Params == nil {
				opts.Params = make(map[string]string)
			}
			opts.Params[param] = val
		}
		ov.Modules[id] = opts
	}
	return ov, nil
}

func nonNegative(name, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s must be a non-negative integer", name)
	}
	return n, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)

	var syn *query.SyntaxError
	if errors.As(err, &syn) {
		pos := syn.Pos
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: syn.Error(), Position: &pos})
		return
	}

	var appErr *apperrors.AppError
	switch {
	case status >= 500 && status != http.StatusGatewayTimeout:
		logger.FromContext(ctx).Error("expansion failed", "error", err)
		h.writeError(w, status, "expansion failed")
	case errors.As(err, &appErr):
		h.writeError(w, status, appErr.Message)
	default:
		h.writeError(w, status, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}
