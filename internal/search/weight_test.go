package search

import (
	"testing"

	"github.com/strata-search/strata/internal/index"
	"github.com/strata-search/strata/internal/search/query"
)

func mustWeight(t *testing.T, e Engine, q query.Query, needsScores bool) Weight {
	t.Helper()
	rewritten, err := e.Rewrite(q)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	w, err := e.Weight(rewritten, needsScores)
	if err != nil {
		t.Fatalf("Weight: %v", err)
	}
	return w
}

func TestTermWeightMatchesAndScores(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{
		"a": {"go", "go", "fast"},
		"b": {"go"},
		"c": {"slow"},
	})
	e := NewEngine(snap)
	w := mustWeight(t, e, query.NewTermQuery("body", "go"), true)

	matches := w.Matches()
	if matches.GetCardinality() != 2 {
		t.Fatalf("cardinality = %d, want 2", matches.GetCardinality())
	}
	if matches.Contains(ordinalOf(t, snap, "c")) {
		t.Error("doc c should not match body:go")
	}
	for _, id := range []string{"a", "b"} {
		if !matches.Contains(ordinalOf(t, snap, id)) {
			t.Errorf("doc %s should match body:go", id)
		}
	}

	var aScore, bScore float64
	it := matches.Iterator()
	for it.HasNext() {
		doc := it.Next()
		extID, _ := snap.ExternalID(doc)
		switch extID {
		case "a":
			aScore = w.Score(doc)
		case "b":
			bScore = w.Score(doc)
		}
	}
	if aScore <= 0 || bScore <= 0 {
		t.Fatalf("scores must be positive, got a=%f b=%f", aScore, bScore)
	}
}

func TestTermFrequencyRaisesScoreAtEqualLength(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{
		"twice": {"go", "go", "pad"},
		"once":  {"go", "pad", "pad"},
	})
	e := NewEngine(snap)
	w := mustWeight(t, e, query.NewTermQuery("body", "go"), true)

	scores := map[string]float64{}
	it := w.Matches().Iterator()
	for it.HasNext() {
		doc := it.Next()
		extID, _ := snap.ExternalID(doc)
		scores[extID] = w.Score(doc)
	}
	if scores["twice"] <= scores["once"] {
		t.Errorf("tf=2 score %f should exceed tf=1 score %f", scores["twice"], scores["once"])
	}
}

func TestBooleanMustIntersects(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{
		"a": {"go", "fast"},
		"b": {"go"},
		"c": {"fast"},
	})
	e := NewEngine(snap)
	q := &query.BooleanQuery{Must: []query.Query{
		query.NewTermQuery("body", "go"),
		query.NewTermQuery("body", "fast"),
	}}
	w := mustWeight(t, e, q, true)

	matches := w.Matches()
	if matches.GetCardinality() != 1 {
		t.Fatalf("cardinality = %d, want 1", matches.GetCardinality())
	}
	extID, _ := snap.ExternalID(matches.Minimum())
	if extID != "a" {
		t.Errorf("matched %s, want a", extID)
	}
}

func TestBooleanMustNotExcludesWithoutScoring(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{
		"a": {"go", "slow"},
		"b": {"go"},
	})
	e := NewEngine(snap)
	q := &query.BooleanQuery{
		Must:    []query.Query{query.NewTermQuery("body", "go")},
		MustNot: []query.Query{query.NewTermQuery("body", "slow")},
	}
	w := mustWeight(t, e, q, true)

	matches := w.Matches()
	if matches.GetCardinality() != 1 {
		t.Fatalf("cardinality = %d, want only the unexcluded doc", matches.GetCardinality())
	}
	doc := matches.Minimum()
	extID, _ := snap.ExternalID(doc)
	if extID != "b" {
		t.Errorf("matched %s, want b", extID)
	}

	// The excluded term must not shift the kept doc's score.
	plain := mustWeight(t, e, query.NewTermQuery("body", "go"), true)
	if w.Score(doc) != plain.Score(doc) {
		t.Errorf("score with exclusion %f != plain score %f", w.Score(doc), plain.Score(doc))
	}
}

func TestBooleanMatchesDoesNotMutateSnapshotBitmaps(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{
		"a": {"go", "fast"},
		"b": {"go"},
	})
	e := NewEngine(snap)
	q := &query.BooleanQuery{Must: []query.Query{
		query.NewTermQuery("body", "go"),
		query.NewTermQuery("body", "fast"),
	}}
	w := mustWeight(t, e, q, true)
	w.Matches()

	goBitmap := snap.Bitmap(index.Term{Field: "body", Text: "go"})
	if goBitmap.GetCardinality() != 2 {
		t.Errorf("snapshot bitmap mutated, cardinality = %d", goBitmap.GetCardinality())
	}
}

func TestMatchAllAndNone(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{"a": {"x"}, "b": {"y"}})
	e := NewEngine(snap)

	all := mustWeight(t, e, &query.MatchAllQuery{}, true)
	if all.Matches().GetCardinality() != 2 {
		t.Errorf("match_all cardinality = %d, want 2", all.Matches().GetCardinality())
	}
	if all.Score(0) != 1 {
		t.Errorf("match_all score = %f, want 1", all.Score(0))
	}

	none := mustWeight(t, e, &query.MatchNoneQuery{}, true)
	if none.Matches().GetCardinality() != 0 {
		t.Error("match_none must match nothing")
	}
}

func TestCheckedEngineRejectsUnrewrittenQuery(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{"a": {"go"}})
	e := NewCheckedEngine(NewEngine(snap))

	// Collapses under rewrite, so requesting its weight directly is a bug.
	q := &query.BooleanQuery{Must: []query.Query{query.NewTermQuery("body", "go")}}
	if _, err := e.Weight(q, true); err == nil {
		t.Fatal("expected an error for a non-rewritten query")
	}

	rewritten, err := e.Rewrite(q)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Weight(rewritten, true); err != nil {
		t.Fatalf("rewritten query should be accepted: %v", err)
	}
}

func TestExplainMentionsContributions(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{"a": {"go", "fast"}})
	e := NewEngine(snap)

	expl, err := e.Explain(&query.BooleanQuery{Should: []query.Query{
		query.NewTermQuery("body", "go"),
		query.NewTermQuery("body", "fast"),
	}}, 0)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !expl.Match {
		t.Fatal("expected a match")
	}
	if len(expl.Details) != 2 {
		t.Errorf("got %d detail nodes, want one per matching clause", len(expl.Details))
	}
	var sum float64
	for _, d := range expl.Details {
		sum += d.Value
	}
	if expl.Value != sum {
		t.Errorf("explanation value %f != sum of details %f", expl.Value, sum)
	}
}
