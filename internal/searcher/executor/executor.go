// Package executor runs parsed queries across all shards and merges the
// results into a single ranked hit list.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strata-search/strata/internal/index"
	"github.com/strata-search/strata/internal/indexer/shard"
	"github.com/strata-search/strata/internal/search"
	"github.com/strata-search/strata/internal/search/dfs"
	"github.com/strata-search/strata/internal/search/profile"
	"github.com/strata-search/strata/internal/search/query"
	"github.com/strata-search/strata/pkg/config"
	"github.com/strata-search/strata/pkg/errors"
	"github.com/strata-search/strata/pkg/metrics"
)

// Options control one search execution.
type Options struct {
	// Limit caps the number of returned hits.
	Limit int
	// Profile attaches a per-shard profiler and returns the timing trees.
	Profile bool
}

// ShardProfile is the profiling output of one shard's execution.
type ShardProfile struct {
	Shard    int                     `json:"shard"`
	Rewrites []profile.RewriteRecord `json:"rewrites,omitempty"`
	Tree     []*profile.Result       `json:"tree"`
}

// Result is a completed search: globally merged hits plus execution
// metadata.
type Result struct {
	Hits      []Hit           `json:"hits"`
	TotalHits uint64          `json:"total_hits"`
	Took      time.Duration   `json:"took"`
	Shards    int             `json:"shards"`
	Profiles  []*ShardProfile `json:"profiles,omitempty"`
}

// Executor fans queries out over the shard router. Scoring always runs
// against statistics aggregated across all shards so document ranks do
// not depend on shard assignment.
type Executor struct {
	router  *shard.Router
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds an Executor over the router.
func New(router *shard.Router, cfg config.SearchConfig, m *metrics.Metrics) *Executor {
	return &Executor{
		router:  router,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "executor"),
	}
}

// Search executes the query tree and returns the merged top hits.
func (e *Executor) Search(ctx context.Context, q query.Query, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Limit <= 0 {
		opts.Limit = e.cfg.DefaultLimit
	}
	if opts.Limit > e.cfg.MaxResults {
		opts.Limit = e.cfg.MaxResults
	}

	snapshots := e.router.Snapshots()

	dfsStart := time.Now()
	stats, err := dfs.Aggregate(ctx, q, snapshots)
	if err != nil {
		return nil, fmt.Errorf("aggregating statistics: %w", err)
	}
	e.metrics.QueryPhaseDuration.WithLabelValues("dfs").Observe(time.Since(dfsStart).Seconds())

	queryStart := time.Now()
	shardHits := make([][]Hit, len(snapshots))
	shardTotals := make([]uint64, len(snapshots))
	var profMu sync.Mutex
	var profiles []*ShardProfile

	g, gctx := errgroup.WithContext(ctx)
	for i, snap := range snapshots {
		g.Go(func() error {
			shardCtx, cancel := context.WithTimeout(gctx, e.cfg.TimeoutPerShard)
			defer cancel()

			hits, total, prof, err := e.searchShard(shardCtx, i, snap, q, stats, opts)
			if err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			shardHits[i] = hits
			shardTotals[i] = total
			if prof != nil {
				profMu.Lock()
				profiles = append(profiles, prof)
				profMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	e.metrics.QueryPhaseDuration.WithLabelValues("query").Observe(time.Since(queryStart).Seconds())

	mergeStart := time.Now()
	merged := mergeShardHits(shardHits, opts.Limit)
	e.metrics.QueryPhaseDuration.WithLabelValues("merge").Observe(time.Since(mergeStart).Seconds())

	var total uint64
	for _, t := range shardTotals {
		total += t
	}

	result := &Result{
		Hits:      merged,
		TotalHits: total,
		Took:      time.Since(start),
		Shards:    len(snapshots),
		Profiles:  profiles,
	}
	e.logger.Debug("search complete",
		"query", q.String(),
		"total_hits", total,
		"returned", len(merged),
		"took", result.Took,
	)
	return result, nil
}

// Explain reports the scoring explanation of one document on its shard.
func (e *Executor) Explain(q query.Query, docID string) (*search.Explanation, error) {
	shardIdx := e.router.ShardFor(docID)
	snap := e.router.Snapshots()[shardIdx]
	engine := search.NewEngine(snap)

	for _, doc := range snap.All().ToArray() {
		if extID, ok := snap.ExternalID(doc); ok && extID == docID {
			return engine.Explain(q, doc)
		}
	}
	return nil, fmt.Errorf("document %q not found on shard %d", docID, shardIdx)
}

func (e *Executor) searchShard(ctx context.Context, shardIdx int, snap *index.Snapshot, q query.Query, stats *dfs.AggregatedStats, opts Options) ([]Hit, uint64, *ShardProfile, error) {
	engine := search.NewCheckedEngine(search.NewEngine(snap))
	sctx := search.NewContext(snap, engine)
	sctx.SetMetrics(e.metrics)
	defer sctx.Close()

	if err := sctx.SetAggregatedStats(stats); err != nil {
		return nil, 0, nil, err
	}
	var profiler *profile.Profiler
	if opts.Profile {
		profiler = profile.NewProfiler()
		if err := sctx.SetProfiler(profiler); err != nil {
			return nil, 0, nil, err
		}
	}

	w, err := sctx.NormalizedWeight(q, true)
	if err != nil {
		return nil, 0, nil, err
	}

	matches := w.Matches()
	total := matches.GetCardinality()
	top := newTopK(opts.Limit)

	it := matches.Iterator()
	checked := 0
	for it.HasNext() {
		doc := it.Next()
		checked++
		if checked%1024 == 0 {
			select {
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					return nil, 0, nil, errors.New(errors.ErrTimeout, http.StatusServiceUnavailable,
						fmt.Sprintf("shard %d exceeded its time budget", shardIdx))
				}
				return nil, 0, nil, ctx.Err()
			default:
			}
		}
		extID, ok := snap.ExternalID(doc)
		if !ok {
			continue
		}
		top.Consider(Hit{DocID: extID, Score: w.Score(doc), Shard: shardIdx})
	}

	var prof *ShardProfile
	if profiler != nil {
		prof = &ShardProfile{
			Shard:    shardIdx,
			Rewrites: profiler.Rewrites(),
			Tree:     profiler.Results(),
		}
	}
	return top.Results(), total, prof, nil
}
