package search

import (
	"net/http"

	"github.com/strata-search/strata/internal/index"
	"github.com/strata-search/strata/internal/search/dfs"
	"github.com/strata-search/strata/internal/search/profile"
	"github.com/strata-search/strata/internal/search/query"
	"github.com/strata-search/strata/pkg/errors"
	"github.com/strata-search/strata/pkg/metrics"
)

// Context is the per-request execution context for one shard. It wraps a
// delegate engine and, when configured, substitutes aggregated cross-shard
// statistics for scoring and attaches a profiler to weight construction
// and execution.
//
// A Context serves exactly one request and is not safe for concurrent
// configuration. SetAggregatedStats and SetProfiler must be called before
// NormalizedWeight.
type Context struct {
	snap  *index.Snapshot
	in    Engine
	local *localEngine

	stats    *dfs.AggregatedStats
	profiler *profile.Profiler
	metrics  *metrics.Metrics

	closed bool
}

// NewContext builds a Context over the snapshot, delegating plain
// execution to in.
func NewContext(snap *index.Snapshot, in Engine) *Context {
	c := &Context{snap: snap, in: in}
	c.local = newLocalEngine(snap, c, c)
	return c
}

// SetAggregatedStats installs the cross-shard statistics table. It may be
// set at most once.
func (c *Context) SetAggregatedStats(stats *dfs.AggregatedStats) error {
	if c.stats != nil {
		return errors.New(errors.ErrInternal, http.StatusInternalServerError, "aggregated statistics already set")
	}
	c.stats = stats
	return nil
}

// SetProfiler attaches a profiler. It may be set at most once.
func (c *Context) SetProfiler(p *profile.Profiler) error {
	if c.profiler != nil {
		return errors.New(errors.ErrInternal, http.StatusInternalServerError, "profiler already set")
	}
	c.profiler = p
	return nil
}

// SetMetrics attaches the process metrics registry so statistics override
// lookups are counted. Optional.
func (c *Context) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// Profiler returns the attached profiler, or nil.
func (c *Context) Profiler() *profile.Profiler {
	return c.profiler
}

// Snapshot returns the snapshot this context executes against.
func (c *Context) Snapshot() *index.Snapshot {
	return c.snap
}

// Rewrite simplifies the query to a fixed point. With a profiler
// attached, the round is timed on a detached breakdown and recorded only
// if the rewrite succeeds, so failed rewrites leave no partial entries.
func (c *Context) Rewrite(q query.Query) (query.Query, error) {
	if c.profiler == nil {
		return c.in.Rewrite(q)
	}
	b := c.profiler.RewriteBreakdown()
	b.Start(profile.PhaseRewrite)
	defer b.Stop(profile.PhaseRewrite)

	rewritten, err := c.in.Rewrite(q)
	b.Stop(profile.PhaseRewrite)
	if err != nil {
		return nil, err
	}
	c.profiler.AddRewrittenQuery(q, rewritten, b)
	return rewritten, nil
}

// NormalizedWeight rewrites the query and builds its weight. Routing
// depends on the context configuration:
//
//   - aggregated statistics present and scores needed: weights are built
//     locally so the override table feeds scoring
//   - profiler attached: weights are built locally so every node is
//     instrumented, which also means the override table applies when one
//     is present
//   - otherwise: construction is delegated unchanged
func (c *Context) NormalizedWeight(q query.Query, needsScores bool) (Weight, error) {
	rewritten, err := c.Rewrite(q)
	if err != nil {
		return nil, err
	}
	if (c.stats != nil && needsScores) || c.profiler != nil {
		return c.Weight(rewritten, needsScores)
	}
	return c.in.Weight(rewritten, needsScores)
}

// Weight builds the weight for an already-rewritten query node. With a
// profiler attached, the node is pushed onto the profile tree for the
// duration of construction and its weight is wrapped for match and score
// timing.
func (c *Context) Weight(q query.Query, needsScores bool) (Weight, error) {
	if c.profiler == nil {
		return c.local.Weight(q, needsScores)
	}
	b := c.profiler.QueryBreakdown(q)
	b.Start(profile.PhaseWeight)
	defer func() {
		b.Stop(profile.PhaseWeight)
		c.profiler.Pop()
	}()
	w, err := c.local.Weight(q, needsScores)
	if err != nil {
		return nil, err
	}
	return newProfiledWeight(w, b), nil
}

// TermStatistics serves the aggregated statistics when the table covers
// the term, falling back to shard-local counts per term otherwise.
func (c *Context) TermStatistics(t index.Term) index.TermStatistics {
	if c.stats != nil {
		if ts, ok := c.stats.Term(t); ok {
			if c.metrics != nil {
				c.metrics.StatsOverrideHits.Inc()
			}
			return ts
		}
		if c.metrics != nil {
			c.metrics.StatsOverrideMisses.Inc()
		}
	}
	return c.snap.TermStatistics(t)
}

// FieldStatistics serves the aggregated statistics when the table covers
// the field, falling back to shard-local counts otherwise.
func (c *Context) FieldStatistics(field string) index.FieldStatistics {
	if c.stats != nil {
		if fs, ok := c.stats.Field(field); ok {
			if c.metrics != nil {
				c.metrics.StatsOverrideHits.Inc()
			}
			return fs
		}
		if c.metrics != nil {
			c.metrics.StatsOverrideMisses.Inc()
		}
	}
	return c.snap.FieldStatistics(field)
}

// MaxDoc returns the aggregated corpus size when statistics are present,
// the snapshot's document count otherwise.
func (c *Context) MaxDoc() int64 {
	if c.stats != nil {
		return c.stats.MaxDoc()
	}
	return c.snap.DocCount()
}

// Explain always delegates: explanations report the shard-local view
// regardless of overrides or profiling.
func (c *Context) Explain(q query.Query, doc uint32) (*Explanation, error) {
	return c.in.Explain(q, doc)
}

// Close marks the context finished. It is idempotent and releases no
// resources of its own; the snapshot stays valid for other holders.
func (c *Context) Close() error {
	c.closed = true
	return nil
}
