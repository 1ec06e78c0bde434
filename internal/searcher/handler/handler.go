// Package handler exposes the search API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/strata-search/strata/internal/analytics"
	"github.com/strata-search/strata/internal/searcher/cache"
	"github.com/strata-search/strata/internal/searcher/executor"
	"github.com/strata-search/strata/internal/searcher/parser"
	"github.com/strata-search/strata/pkg/config"
	"github.com/strata-search/strata/pkg/errors"
	"github.com/strata-search/strata/pkg/logger"
	"github.com/strata-search/strata/pkg/metrics"
	"github.com/strata-search/strata/pkg/middleware"
)

// Handler serves search requests.
type Handler struct {
	exec      *executor.Executor
	cache     *cache.QueryCache
	collector *analytics.Collector
	cfg       config.SearchConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds the search handler. collector may be nil when analytics is
// disabled.
func New(exec *executor.Executor, qc *cache.QueryCache, collector *analytics.Collector, cfg config.SearchConfig, m *metrics.Metrics) *Handler {
	return &Handler{
		exec:      exec,
		cache:     qc,
		collector: collector,
		cfg:       cfg,
		metrics:   m,
		logger:    slog.Default().With("component", "search_handler"),
	}
}

// Register mounts the search routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.handleSearch)
	mux.HandleFunc("GET /api/v1/explain", h.handleExplain)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.handleInvalidate)
}

type searchResponse struct {
	Query string `json:"query"`
	*executor.Result
	CacheHit bool `json:"cache_hit"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rawQuery := r.URL.Query().Get("q")
	log := logger.FromContext(r.Context())

	q, err := parser.Parse(rawQuery)
	if err != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		h.writeError(w, err)
		return
	}

	limit := h.cfg.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, errors.New(errors.ErrInvalidQuery, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, h.cfg.MaxResults)
	}
	profiled := h.cfg.ProfileEnabled && r.URL.Query().Get("profile") == "true"
	opts := executor.Options{Limit: limit, Profile: profiled}

	var result *executor.Result
	cacheHit := false
	if profiled {
		// Profile trees are request-specific, never cached.
		h.metrics.ProfiledQueriesTotal.Inc()
		result, err = h.exec.Search(r.Context(), q, opts)
	} else {
		key := cache.Key(q.String(), limit)
		missed := false
		result, err = h.cache.Get(r.Context(), key, func(ctx context.Context) (*executor.Result, error) {
			missed = true
			return h.exec.Search(ctx, q, opts)
		})
		cacheHit = err == nil && !missed
	}
	if err != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		log.Error("search failed", "query", rawQuery, "error", err)
		h.writeError(w, err)
		return
	}

	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())

	if h.collector != nil {
		h.collector.Record(analytics.SearchEvent{
			RequestID: middleware.GetRequestID(r.Context()),
			RawQuery:  rawQuery,
			Query:     q.String(),
			TotalHits: result.TotalHits,
			Returned:  len(result.Hits),
			TookMs:    float64(time.Since(start).Microseconds()) / 1000,
			CacheHit:  cacheHit,
			Profiled:  profiled,
			Timestamp: time.Now().UTC(),
		})
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query:    q.String(),
		Result:   result,
		CacheHit: cacheHit,
	})
}

func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	rawQuery := r.URL.Query().Get("q")
	docID := r.URL.Query().Get("doc")
	if docID == "" {
		h.writeError(w, errors.New(errors.ErrInvalidQuery, http.StatusBadRequest, "doc parameter is required"))
		return
	}
	q, err := parser.Parse(rawQuery)
	if err != nil {
		h.writeError(w, err)
		return
	}
	expl, err := h.exec.Explain(q, docID)
	if err != nil {
		h.writeError(w, errors.New(errors.ErrDocumentNotFound, http.StatusNotFound, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":       q.String(),
		"doc_id":      docID,
		"explanation": expl,
	})
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("query cache invalidated", "entries_removed", removed)
	writeJSON(w, http.StatusOK, map[string]any{"entries_removed": removed})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.HTTPStatusCode(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
