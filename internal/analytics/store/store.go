// Package store persists aggregated query analytics to Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/strata-search/strata/internal/analytics"
	"github.com/strata-search/strata/pkg/postgres"
	"github.com/strata-search/strata/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_stats (
	query          TEXT PRIMARY KEY,
	search_count   BIGINT NOT NULL,
	zero_hit_count BIGINT NOT NULL,
	cache_hit_count BIGINT NOT NULL,
	total_took_ms  DOUBLE PRECISION NOT NULL,
	last_seen      TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS query_stats_count_idx ON query_stats (search_count DESC);
`

// Store writes aggregated query statistics snapshots.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates the Store and ensures the schema exists.
func New(db *postgres.Client) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics_store"),
	}
	if _, err := db.DB.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating analytics schema: %w", err)
	}
	return s, nil
}

// SaveSnapshot upserts the given statistics in one transaction, retrying
// on transient database failures.
func (s *Store) SaveSnapshot(ctx context.Context, stats []analytics.QueryStats) error {
	if len(stats) == 0 {
		return nil
	}
	return resilience.Retry(ctx, "analytics_save", resilience.RetryConfig{}, func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `
				INSERT INTO query_stats (query, search_count, zero_hit_count, cache_hit_count, total_took_ms, last_seen, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now())
				ON CONFLICT (query) DO UPDATE SET
					search_count = query_stats.search_count + EXCLUDED.search_count,
					zero_hit_count = query_stats.zero_hit_count + EXCLUDED.zero_hit_count,
					cache_hit_count = query_stats.cache_hit_count + EXCLUDED.cache_hit_count,
					total_took_ms = query_stats.total_took_ms + EXCLUDED.total_took_ms,
					last_seen = GREATEST(query_stats.last_seen, EXCLUDED.last_seen),
					updated_at = now()`)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for _, qs := range stats {
				if _, err := stmt.ExecContext(ctx, qs.Query, qs.Count, qs.ZeroHits, qs.CacheHits, qs.TotalTookMs, qs.LastSeen); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// TopQueries reads the most frequent queries from the persisted stats.
func (s *Store) TopQueries(ctx context.Context, limit int) ([]analytics.QueryStats, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT query, search_count, zero_hit_count, cache_hit_count, total_took_ms, last_seen
		FROM query_stats
		ORDER BY search_count DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top queries: %w", err)
	}
	defer rows.Close()

	var out []analytics.QueryStats
	for rows.Next() {
		var qs analytics.QueryStats
		var lastSeen time.Time
		if err := rows.Scan(&qs.Query, &qs.Count, &qs.ZeroHits, &qs.CacheHits, &qs.TotalTookMs, &lastSeen); err != nil {
			return nil, err
		}
		qs.LastSeen = lastSeen
		if qs.Count > 0 {
			qs.AvgTookMs = qs.TotalTookMs / float64(qs.Count)
		}
		out = append(out, qs)
	}
	return out, rows.Err()
}
