package search

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/strata-search/strata/internal/search/profile"
	"github.com/strata-search/strata/internal/search/query"
)

// profiledWeight times match and score calls on the breakdown of the
// query node it wraps. Explain is deliberately not timed since it only
// runs for debugging.
type profiledWeight struct {
	in        Weight
	breakdown *profile.Breakdown
}

func newProfiledWeight(in Weight, b *profile.Breakdown) *profiledWeight {
	return &profiledWeight{in: in, breakdown: b}
}

func (w *profiledWeight) Query() query.Query { return w.in.Query() }

func (w *profiledWeight) Matches() *roaring.Bitmap {
	w.breakdown.Start(profile.PhaseMatch)
	defer w.breakdown.Stop(profile.PhaseMatch)
	return w.in.Matches()
}

func (w *profiledWeight) Score(doc uint32) float64 {
	w.breakdown.Start(profile.PhaseScore)
	defer w.breakdown.Stop(profile.PhaseScore)
	return w.in.Score(doc)
}

func (w *profiledWeight) Explain(doc uint32) *Explanation {
	return w.in.Explain(doc)
}
