package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// Handler serves the analytics read API from the in-memory aggregator.
type Handler struct {
	agg    *Aggregator
	logger *slog.Logger
}

// NewHandler builds the analytics HTTP handler.
func NewHandler(agg *Aggregator) *Handler {
	return &Handler{
		agg:    agg,
		logger: slog.Default().With("component", "analytics_handler"),
	}
}

// Register mounts the analytics routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics/top-queries", h.handleTopQueries)
	mux.HandleFunc("GET /api/v1/analytics/zero-hits", h.handleZeroHits)
}

func (h *Handler) handleTopQueries(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10)
	writeJSON(w, http.StatusOK, map[string]any{
		"queries": h.agg.TopQueries(limit),
	})
}

func (h *Handler) handleZeroHits(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10)
	writeJSON(w, http.StatusOK, map[string]any{
		"queries": h.agg.ZeroHitQueries(limit),
	})
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 1000 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
