package search

import (
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/strata-search/strata/internal/index"
	"github.com/strata-search/strata/internal/search/query"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Weight is a query bound to a snapshot and to corpus statistics, ready
// for matching and scoring. Weights are immutable once built.
type Weight interface {
	// Query returns the query this weight was built from.
	Query() query.Query
	// Matches returns the set of matching doc ordinals. Callers must not
	// mutate the returned bitmap.
	Matches() *roaring.Bitmap
	// Score computes the document's score. It must only be called for
	// documents present in Matches.
	Score(doc uint32) float64
	// Explain describes the score computation for one document.
	Explain(doc uint32) *Explanation
}

// termWeight scores a single term with BM25. The inverse document
// frequency is fixed at construction time from the statistics source, so
// an aggregated cross-shard table yields globally consistent scores while
// term frequencies and document lengths stay shard-local.
type termWeight struct {
	q           *query.TermQuery
	snap        *index.Snapshot
	postings    index.PostingList
	idf         float64
	avgDocLen   float64
	needsScores bool
}

func newTermWeight(q *query.TermQuery, snap *index.Snapshot, stats StatsSource, needsScores bool) *termWeight {
	w := &termWeight{
		q:           q,
		snap:        snap,
		postings:    snap.Postings(q.Term),
		needsScores: needsScores,
	}
	if needsScores {
		ts := stats.TermStatistics(q.Term)
		fs := stats.FieldStatistics(q.Term.Field)
		docCount := fs.DocCount
		if docCount == 0 {
			docCount = stats.MaxDoc()
		}
		w.idf = math.Log(1 + (float64(docCount)-float64(ts.DocFreq)+0.5)/(float64(ts.DocFreq)+0.5))
		if fs.DocCount > 0 {
			w.avgDocLen = float64(fs.SumTotalTermFreq) / float64(fs.DocCount)
		}
	}
	return w
}

func (w *termWeight) Query() query.Query { return w.q }

func (w *termWeight) Matches() *roaring.Bitmap {
	return w.snap.Bitmap(w.q.Term)
}

func (w *termWeight) frequency(doc uint32) int {
	i := sort.Search(len(w.postings), func(i int) bool {
		return w.postings[i].Doc >= doc
	})
	if i < len(w.postings) && w.postings[i].Doc == doc {
		return w.postings[i].Frequency
	}
	return 0
}

func (w *termWeight) Score(doc uint32) float64 {
	if !w.needsScores {
		return 0
	}
	tf := float64(w.frequency(doc))
	if tf == 0 {
		return 0
	}
	norm := 1.0
	if w.avgDocLen > 0 {
		norm = 1 - bm25B + bm25B*float64(w.snap.DocLength(w.q.Term.Field, doc))/w.avgDocLen
	}
	return w.idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
}

func (w *termWeight) Explain(doc uint32) *Explanation {
	tf := w.frequency(doc)
	if tf == 0 {
		return NoMatch(fmt.Sprintf("no occurrence of %s in doc %d", w.q.Term, doc))
	}
	score := w.Score(doc)
	return Explain(score,
		fmt.Sprintf("bm25(%s), score from tf and idf", w.q.Term),
		Explainf(float64(tf), "term frequency"),
		Explainf(w.idf, "inverse document frequency"),
		Explainf(w.avgDocLen, "average field length"),
	)
}

// booleanWeight combines child weights with boolean semantics. MustNot
// children are built without scoring and only prune the match set.
type booleanWeight struct {
	q       *query.BooleanQuery
	must    []Weight
	should  []Weight
	mustNot []Weight
}

func newBooleanWeight(q *query.BooleanQuery, weights WeightSource, needsScores bool) (*booleanWeight, error) {
	w := &booleanWeight{q: q}
	for _, c := range q.Must {
		cw, err := weights.Weight(c, needsScores)
		if err != nil {
			return nil, err
		}
		w.must = append(w.must, cw)
	}
	for _, c := range q.Should {
		cw, err := weights.Weight(c, needsScores)
		if err != nil {
			return nil, err
		}
		w.should = append(w.should, cw)
	}
	for _, c := range q.MustNot {
		cw, err := weights.Weight(c, false)
		if err != nil {
			return nil, err
		}
		w.mustNot = append(w.mustNot, cw)
	}
	return w, nil
}

func (w *booleanWeight) Query() query.Query { return w.q }

func (w *booleanWeight) Matches() *roaring.Bitmap {
	var result *roaring.Bitmap
	if len(w.must) > 0 {
		result = w.must[0].Matches().Clone()
		for _, cw := range w.must[1:] {
			result.And(cw.Matches())
		}
	} else {
		result = roaring.New()
		for _, cw := range w.should {
			result.Or(cw.Matches())
		}
	}
	for _, cw := range w.mustNot {
		result.AndNot(cw.Matches())
	}
	return result
}

func (w *booleanWeight) Score(doc uint32) float64 {
	var score float64
	for _, cw := range w.must {
		score += cw.Score(doc)
	}
	for _, cw := range w.should {
		if cw.Matches().Contains(doc) {
			score += cw.Score(doc)
		}
	}
	return score
}

func (w *booleanWeight) Explain(doc uint32) *Explanation {
	if !w.Matches().Contains(doc) {
		return NoMatch("boolean query does not match")
	}
	details := make([]*Explanation, 0, len(w.must)+len(w.should))
	for _, cw := range w.must {
		details = append(details, cw.Explain(doc))
	}
	for _, cw := range w.should {
		if cw.Matches().Contains(doc) {
			details = append(details, cw.Explain(doc))
		}
	}
	return Explain(w.Score(doc), "sum of matching clauses", details...)
}

// matchAllWeight matches every document in the snapshot with a constant
// score of 1.
type matchAllWeight struct {
	q    *query.MatchAllQuery
	snap *index.Snapshot
}

func (w *matchAllWeight) Query() query.Query       { return w.q }
func (w *matchAllWeight) Matches() *roaring.Bitmap { return w.snap.All() }
func (w *matchAllWeight) Score(doc uint32) float64 { return 1 }
func (w *matchAllWeight) Explain(doc uint32) *Explanation {
	if !w.snap.All().Contains(doc) {
		return NoMatch("document not in snapshot")
	}
	return Explain(1, "match_all, constant score")
}

// matchNoneWeight matches nothing.
type matchNoneWeight struct {
	q *query.MatchNoneQuery
}

func (w *matchNoneWeight) Query() query.Query       { return w.q }
func (w *matchNoneWeight) Matches() *roaring.Bitmap { return roaring.New() }
func (w *matchNoneWeight) Score(doc uint32) float64 { return 0 }
func (w *matchNoneWeight) Explain(doc uint32) *Explanation {
	return NoMatch("match_none matches no documents")
}
