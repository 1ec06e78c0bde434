// Package dfs aggregates term and field statistics across shards so that
// per-shard scoring uses global document frequencies instead of local ones.
package dfs

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/strata-search/strata/internal/index"
	"github.com/strata-search/strata/internal/search/query"
)

// AggregatedStats is an immutable table of cross-shard statistics keyed by
// term and field. A nil *AggregatedStats means no aggregation happened and
// scoring falls back to shard-local statistics.
type AggregatedStats struct {
	terms    map[index.Term]index.TermStatistics
	fields   map[string]index.FieldStatistics
	maxDoc   int64
	numTerms int
}

// New builds an AggregatedStats from already-aggregated tables. The maps
// are copied so callers cannot mutate the result.
func New(terms map[index.Term]index.TermStatistics, fields map[string]index.FieldStatistics, maxDoc int64) *AggregatedStats {
	t := make(map[index.Term]index.TermStatistics, len(terms))
	for k, v := range terms {
		t[k] = v
	}
	f := make(map[string]index.FieldStatistics, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return &AggregatedStats{terms: t, fields: f, maxDoc: maxDoc, numTerms: len(t)}
}

// Term looks up the aggregated statistics for a term. The second return
// reports whether the term was part of the aggregation.
func (s *AggregatedStats) Term(t index.Term) (index.TermStatistics, bool) {
	st, ok := s.terms[t]
	return st, ok
}

// Field looks up the aggregated statistics for a field.
func (s *AggregatedStats) Field(field string) (index.FieldStatistics, bool) {
	st, ok := s.fields[field]
	return st, ok
}

// MaxDoc returns the total document count across all aggregated shards.
func (s *AggregatedStats) MaxDoc() int64 {
	return s.maxDoc
}

// NumTerms returns how many distinct terms the table covers.
func (s *AggregatedStats) NumTerms() int {
	return s.numTerms
}

// Aggregate runs the distributed frequency phase: it extracts the query's
// scoring terms and sums their statistics across every shard snapshot
// concurrently. Terms under MustNot clauses are not collected since they
// never score.
func Aggregate(ctx context.Context, q query.Query, snapshots []*index.Snapshot) (*AggregatedStats, error) {
	terms := query.ExtractTerms(q)

	var mu sync.Mutex
	termStats := make(map[index.Term]index.TermStatistics, len(terms))
	fieldStats := make(map[string]index.FieldStatistics)
	var maxDoc int64

	g, ctx := errgroup.WithContext(ctx)
	for _, snap := range snapshots {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			localTerms := make([]index.TermStatistics, 0, len(terms))
			for _, t := range terms {
				localTerms = append(localTerms, snap.TermStatistics(t))
			}
			localFields := make([]index.FieldStatistics, 0)
			for _, field := range snap.Fields() {
				localFields = append(localFields, snap.FieldStatistics(field))
			}
			docs := snap.DocCount()

			mu.Lock()
			defer mu.Unlock()
			maxDoc += docs
			for _, ts := range localTerms {
				agg := termStats[ts.Term]
				agg.Term = ts.Term
				agg.DocFreq += ts.DocFreq
				agg.TotalTermFreq += ts.TotalTermFreq
				termStats[ts.Term] = agg
			}
			for _, fs := range localFields {
				agg := fieldStats[fs.Field]
				agg.Field = fs.Field
				agg.DocCount += fs.DocCount
				agg.SumTotalTermFreq += fs.SumTotalTermFreq
				agg.SumDocFreq += fs.SumDocFreq
				fieldStats[fs.Field] = agg
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return New(termStats, fieldStats, maxDoc), nil
}
