// Package search executes query trees against index snapshots. The
// Context type layers statistics overrides and profiling on top of a
// plain engine without changing its scoring.
package search

import (
	"fmt"
	"net/http"

	"github.com/RoaringBitmap/roaring"

	"github.com/strata-search/strata/internal/index"
	"github.com/strata-search/strata/internal/search/query"
	"github.com/strata-search/strata/pkg/errors"
)

// StatsSource supplies the corpus statistics used when constructing
// scoring weights. Implementations may serve shard-local counts or an
// aggregated cross-shard table.
type StatsSource interface {
	TermStatistics(t index.Term) index.TermStatistics
	FieldStatistics(field string) index.FieldStatistics
	MaxDoc() int64
}

// WeightSource constructs weights for query nodes. The engine routes
// child weight construction back through its WeightSource so a wrapper
// can observe every node in the tree.
type WeightSource interface {
	Weight(q query.Query, needsScores bool) (Weight, error)
}

// Engine binds queries to a snapshot. Rewrite must be driven to a fixed
// point before Weight is called.
type Engine interface {
	StatsSource
	WeightSource
	Rewrite(q query.Query) (query.Query, error)
	Explain(q query.Query, doc uint32) (*Explanation, error)
	Snapshot() *index.Snapshot
}

// localEngine executes against a single snapshot. Its statistics and
// child weight construction are pluggable so a Context can substitute
// itself for both.
type localEngine struct {
	snap    *index.Snapshot
	stats   StatsSource
	weights WeightSource
}

// NewEngine returns an engine serving shard-local statistics from the
// snapshot.
func NewEngine(snap *index.Snapshot) Engine {
	e := &localEngine{snap: snap}
	e.stats = e
	e.weights = e
	return e
}

// newLocalEngine builds an engine whose statistics and recursive weight
// construction go through the given sources.
func newLocalEngine(snap *index.Snapshot, stats StatsSource, weights WeightSource) *localEngine {
	return &localEngine{snap: snap, stats: stats, weights: weights}
}

func (e *localEngine) Snapshot() *index.Snapshot { return e.snap }

func (e *localEngine) TermStatistics(t index.Term) index.TermStatistics {
	return e.snap.TermStatistics(t)
}

func (e *localEngine) FieldStatistics(field string) index.FieldStatistics {
	return e.snap.FieldStatistics(field)
}

func (e *localEngine) MaxDoc() int64 {
	return e.snap.DocCount()
}

func (e *localEngine) Rewrite(q query.Query) (query.Query, error) {
	return query.Rewrite(q)
}

func (e *localEngine) Weight(q query.Query, needsScores bool) (Weight, error) {
	switch qt := q.(type) {
	case *query.TermQuery:
		return newTermWeight(qt, e.snap, e.stats, needsScores), nil
	case *query.BooleanQuery:
		return newBooleanWeight(qt, e.weights, needsScores)
	case *query.MatchAllQuery:
		return &matchAllWeight{q: qt, snap: e.snap}, nil
	case *query.MatchNoneQuery:
		return &matchNoneWeight{q: qt}, nil
	default:
		return nil, errors.Newf(errors.ErrInvalidQuery, http.StatusBadRequest, "no weight for query type %T", q)
	}
}

func (e *localEngine) Explain(q query.Query, doc uint32) (*Explanation, error) {
	rewritten, err := e.Rewrite(q)
	if err != nil {
		return nil, err
	}
	w, err := e.Weight(rewritten, true)
	if err != nil {
		return nil, err
	}
	return w.Explain(doc), nil
}

// checkedEngine wraps an engine with contract checks: weights may only be
// built for fully rewritten queries, and scores may only be requested for
// matching documents. It is the delegate used when no overrides or
// profiling apply, and doubles as a test harness.
type checkedEngine struct {
	in Engine
}

// NewCheckedEngine wraps in with runtime contract checks.
func NewCheckedEngine(in Engine) Engine {
	return &checkedEngine{in: in}
}

func (e *checkedEngine) Snapshot() *index.Snapshot { return e.in.Snapshot() }

func (e *checkedEngine) TermStatistics(t index.Term) index.TermStatistics {
	return e.in.TermStatistics(t)
}

func (e *checkedEngine) FieldStatistics(field string) index.FieldStatistics {
	return e.in.FieldStatistics(field)
}

func (e *checkedEngine) MaxDoc() int64 { return e.in.MaxDoc() }

func (e *checkedEngine) Rewrite(q query.Query) (query.Query, error) {
	return e.in.Rewrite(q)
}

func (e *checkedEngine) Weight(q query.Query, needsScores bool) (Weight, error) {
	rewritten, err := e.in.Rewrite(q)
	if err != nil {
		return nil, err
	}
	if rewritten.String() != q.String() {
		return nil, errors.Newf(errors.ErrInvalidQuery, http.StatusBadRequest,
			"weight requested for non-rewritten query %s", q)
	}
	w, err := e.in.Weight(q, needsScores)
	if err != nil {
		return nil, err
	}
	return &checkedWeight{in: w}, nil
}

func (e *checkedEngine) Explain(q query.Query, doc uint32) (*Explanation, error) {
	return e.in.Explain(q, doc)
}

// checkedWeight panics when scored outside its match set, which would
// silently produce garbage rankings otherwise.
type checkedWeight struct {
	in Weight
}

func (w *checkedWeight) Query() query.Query { return w.in.Query() }

func (w *checkedWeight) Matches() *roaring.Bitmap { return w.in.Matches() }

func (w *checkedWeight) Score(doc uint32) float64 {
	if !w.in.Matches().Contains(doc) {
		panic(fmt.Sprintf("score requested for non-matching doc %d of query %s", doc, w.in.Query()))
	}
	return w.in.Score(doc)
}

func (w *checkedWeight) Explain(doc uint32) *Explanation {
	return w.in.Explain(doc)
}
