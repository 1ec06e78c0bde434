// Package shard routes documents across per-shard indexing engines.
package shard

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"

	"github.com/strata-search/strata/internal/index"
	"github.com/strata-search/strata/internal/indexer"
	"github.com/strata-search/strata/pkg/config"
	"github.com/strata-search/strata/pkg/metrics"
)

// Router owns one indexing engine per shard and assigns documents to
// shards by hashing their external IDs.
type Router struct {
	engines []*indexer.Engine
	logger  *slog.Logger
}

// NewRouter creates one engine per configured shard, each with its own
// data subdirectory, and recovers their segments.
func NewRouter(cfg config.IndexerConfig) (*Router, error) {
	engines := make([]*indexer.Engine, cfg.NumShards)
	for i := 0; i < cfg.NumShards; i++ {
		shardCfg := cfg
		shardCfg.DataDir = filepath.Join(cfg.DataDir, fmt.Sprintf("shard-%d", i))
		eng, err := indexer.NewEngine(shardCfg)
		if err != nil {
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		engines[i] = eng
	}
	return &Router{
		engines: engines,
		logger:  slog.Default().With("component", "shard_router"),
	}, nil
}

// SetMetrics attaches the process metrics registry to every shard engine.
func (r *Router) SetMetrics(m *metrics.Metrics) {
	for _, eng := range r.engines {
		eng.SetMetrics(m)
	}
}

// ShardFor returns the shard index a document ID maps to.
func (r *Router) ShardFor(docID string) int {
	h := fnv.New32a()
	h.Write([]byte(docID))
	return int(h.Sum32() % uint32(len(r.engines)))
}

// Index routes the document to its shard's engine.
func (r *Router) Index(doc indexer.Document) error {
	shard := r.ShardFor(doc.ID)
	if err := r.engines[shard].IndexDocument(doc); err != nil {
		return fmt.Errorf("indexing document %q on shard %d: %w", doc.ID, shard, err)
	}
	return nil
}

// Snapshots acquires a point-in-time snapshot of every shard.
func (r *Router) Snapshots() []*index.Snapshot {
	snaps := make([]*index.Snapshot, len(r.engines))
	for i, eng := range r.engines {
		snaps[i] = eng.Snapshot()
	}
	return snaps
}

// NumShards returns the number of shards behind this router.
func (r *Router) NumShards() int {
	return len(r.engines)
}

// DocCounts returns the per-shard document counts.
func (r *Router) DocCounts() []int {
	counts := make([]int, len(r.engines))
	for i, eng := range r.engines {
		counts[i] = eng.DocCount()
	}
	return counts
}

// StartFlushLoops starts the periodic flush loop on every shard engine.
func (r *Router) StartFlushLoops(ctx context.Context) {
	for _, eng := range r.engines {
		eng.StartFlushLoop(ctx)
	}
}

// Close flushes and closes every shard engine, returning the first error.
func (r *Router) Close() error {
	var firstErr error
	for i, eng := range r.engines {
		if err := eng.Close(); err != nil {
			r.logger.Error("closing shard engine failed", "shard", i, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
