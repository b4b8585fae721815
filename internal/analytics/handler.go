package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// SnapshotLister reads persisted history, newest first.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error)
	ModuleHealth(ctx context.Context, module string, limit int) ([]ModulePoint, error)
}

type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotLister
	logger     *slog.Logger
}

// NewHandler serves live statistics and, when snapshots is non-nil, the
// persisted history.
func NewHandler(aggregator *Aggregator, snapshots SnapshotLister) *Handler {
	return &Handler{
		aggregator: aggregator,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

func (h *Handler) Snapshots(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.historyRequest(w, r)
	if !ok {
		return
	}
	snaps, err := h.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing snapshots failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing snapshots failed"})
		return
	}
	if snaps == nil {
		snaps = []AggregatedStats{}
	}
	h.writeJSON(w, http.StatusOK, snaps)
}

// ModuleHistory serves GET /api/v1/analytics/modules/{id}: the persisted
// failure and timeout counters of one module.
func (h *Handler) ModuleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.historyRequest(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	points, err := h.snapshots.ModuleHealth(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("loading module history failed", "module", id, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "loading module history failed"})
		return
	}
	if points == nil {
		points = []ModulePoint{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"module": id, "history": points})
}

// historyRequest checks that a store is configured and parses ?limit.
func (h *Handler) historyRequest(w http.ResponseWriter, r *http.Request) (int, bool) {
	if h.snapshots == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot store is not configured"})
		return 0, false
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
			return 0, false
		}
		limit = n
	}
	return limit, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
