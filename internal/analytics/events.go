// Package analytics tracks query traffic: every search emits an event to
// Kafka, an aggregator folds the stream into per-query statistics, and a
// Postgres store persists periodic snapshots.
package analytics

import "time"

// SearchEvent describes one executed search.
type SearchEvent struct {
	RequestID string    `json:"request_id,omitempty"`
	RawQuery  string    `json:"raw_query"`
	Query     string    `json:"query"`
	TotalHits uint64    `json:"total_hits"`
	Returned  int       `json:"returned"`
	TookMs    float64   `json:"took_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Profiled  bool      `json:"profiled"`
	Timestamp time.Time `json:"timestamp"`
}

// QueryStats is the aggregated view of one distinct query string.
type QueryStats struct {
	Query       string    `json:"query"`
	Count       int64     `json:"count"`
	ZeroHits    int64     `json:"zero_hits"`
	CacheHits   int64     `json:"cache_hits"`
	TotalTookMs float64   `json:"total_took_ms"`
	AvgTookMs   float64   `json:"avg_took_ms"`
	LastSeen    time.Time `json:"last_seen"`
}
