package search

import (
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/strata-search/strata/internal/index"
	"github.com/strata-search/strata/internal/search/dfs"
	"github.com/strata-search/strata/internal/search/profile"
	"github.com/strata-search/strata/internal/search/query"
	"github.com/strata-search/strata/pkg/metrics"
)

// buildSnapshot indexes in sorted ID order so ordinal assignment is
// deterministic across runs.
func buildSnapshot(t *testing.T, docs map[string][]string) *index.Snapshot {
	t.Helper()
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	m := index.NewMemory()
	for _, id := range ids {
		m.AddDocument(id, map[string][]string{"body": docs[id]})
	}
	return m.Snapshot()
}

// ordinalOf resolves a document's internal ordinal from its external ID.
func ordinalOf(t *testing.T, snap *index.Snapshot, id string) uint32 {
	t.Helper()
	it := snap.All().Iterator()
	for it.HasNext() {
		doc := it.Next()
		if extID, ok := snap.ExternalID(doc); ok && extID == id {
			return doc
		}
	}
	t.Fatalf("document %q not in snapshot", id)
	return 0
}

// recordingEngine counts which delegate operations ran.
type recordingEngine struct {
	Engine
	weightCalls  int
	explainCalls int
}

func (r *recordingEngine) Weight(q query.Query, needsScores bool) (Weight, error) {
	r.weightCalls++
	return r.Engine.Weight(q, needsScores)
}

func (r *recordingEngine) Explain(q query.Query, doc uint32) (*Explanation, error) {
	r.explainCalls++
	return r.Engine.Explain(q, doc)
}

// brokenQuery is a query type the rewriter rejects.
type brokenQuery struct{}

func (brokenQuery) String() string { return "broken" }

func newTestContext(t *testing.T, snap *index.Snapshot) (*Context, *recordingEngine) {
	t.Helper()
	delegate := &recordingEngine{Engine: NewEngine(snap)}
	return NewContext(snap, delegate), delegate
}

func overrideTable(term index.Term, docFreq, totalFreq, maxDoc int64) *dfs.AggregatedStats {
	return dfs.New(
		map[index.Term]index.TermStatistics{
			term: {Term: term, DocFreq: docFreq, TotalTermFreq: totalFreq},
		},
		map[string]index.FieldStatistics{
			term.Field: {Field: term.Field, DocCount: maxDoc, SumTotalTermFreq: maxDoc},
		},
		maxDoc,
	)
}

func TestTermStatisticsServedFromOverrideTable(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{"a": {"go"}})
	ctx, _ := newTestContext(t, snap)

	term := index.Term{Field: "body", Text: "go"}
	if err := ctx.SetAggregatedStats(overrideTable(term, 40, 100, 1000)); err != nil {
		t.Fatalf("SetAggregatedStats: %v", err)
	}

	ts := ctx.TermStatistics(term)
	if ts.DocFreq != 40 || ts.TotalTermFreq != 100 {
		t.Errorf("stats = %+v, want table values 40/100", ts)
	}
	if ctx.MaxDoc() != 1000 {
		t.Errorf("MaxDoc = %d, want aggregated 1000", ctx.MaxDoc())
	}
}

func TestTermStatisticsFallsBackPerKey(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{"a": {"go", "fast"}})
	ctx, _ := newTestContext(t, snap)

	covered := index.Term{Field: "body", Text: "go"}
	if err := ctx.SetAggregatedStats(overrideTable(covered, 40, 100, 1000)); err != nil {
		t.Fatal(err)
	}

	// Not in the table: must use the local snapshot, not zeros.
	local := ctx.TermStatistics(index.Term{Field: "body", Text: "fast"})
	if local.DocFreq != 1 || local.TotalTermFreq != 1 {
		t.Errorf("fallback stats = %+v, want local 1/1", local)
	}
	if fs := ctx.FieldStatistics("title"); fs.DocCount != 0 {
		t.Errorf("uncovered field stats = %+v, want local zeros", fs)
	}
}

func TestStatisticsLookupsCountHitsAndMisses(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{"a": {"go"}})
	ctx, _ := newTestContext(t, snap)
	m := metrics.NewUnregistered()
	ctx.SetMetrics(m)

	term := index.Term{Field: "body", Text: "go"}
	if err := ctx.SetAggregatedStats(overrideTable(term, 5, 5, 10)); err != nil {
		t.Fatal(err)
	}

	ctx.TermStatistics(term)
	if fs := ctx.FieldStatistics("body"); fs.DocCount != 10 {
		t.Fatalf("override field DocCount = %d, want 10", fs.DocCount)
	}
	if got := testutil.ToFloat64(m.StatsOverrideHits); got != 2 {
		t.Errorf("stats_override_hits = %v, want 2", got)
	}

	ctx.TermStatistics(index.Term{Field: "body", Text: "fast"})
	ctx.FieldStatistics("title")
	if got := testutil.ToFloat64(m.StatsOverrideMisses); got != 2 {
		t.Errorf("stats_override_misses = %v, want 2", got)
	}
}

func TestStatisticsWithoutTableAreLocal(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{"a": {"go"}, "b": {"go"}})
	ctx, _ := newTestContext(t, snap)

	ts := ctx.TermStatistics(index.Term{Field: "body", Text: "go"})
	if ts.DocFreq != 2 {
		t.Errorf("DocFreq = %d, want local 2", ts.DocFreq)
	}
	if ctx.MaxDoc() != 2 {
		t.Errorf("MaxDoc = %d, want 2", ctx.MaxDoc())
	}
}

func TestSettersRejectSecondCall(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{"a": {"go"}})
	ctx, _ := newTestContext(t, snap)

	stats := overrideTable(index.Term{Field: "body", Text: "go"}, 1, 1, 1)
	if err := ctx.SetAggregatedStats(stats); err != nil {
		t.Fatalf("first SetAggregatedStats: %v", err)
	}
	if err := ctx.SetAggregatedStats(stats); err == nil {
		t.Error("second SetAggregatedStats should fail")
	}

	if err := ctx.SetProfiler(profile.NewProfiler()); err != nil {
		t.Fatalf("first SetProfiler: %v", err)
	}
	if err := ctx.SetProfiler(profile.NewProfiler()); err == nil {
		t.Error("second SetProfiler should fail")
	}
}

func TestNormalizedWeightRouting(t *testing.T) {
	term := index.Term{Field: "body", Text: "go"}
	q := query.NewTermQuery("body", "go")

	tests := []struct {
		name         string
		withStats    bool
		withProfiler bool
		needsScores  bool
		wantDelegate bool
	}{
		{"plain delegates", false, false, true, true},
		{"plain without scores delegates", false, false, false, true},
		{"stats with scores runs locally", true, false, true, false},
		{"stats without scores delegates", true, false, false, true},
		{"profiler runs locally", false, true, true, false},
		{"profiler without scores runs locally", false, true, false, false},
		{"stats and profiler run locally", true, true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := buildSnapshot(t, map[string][]string{"a": {"go"}})
			ctx, delegate := newTestContext(t, snap)
			if tt.withStats {
				if err := ctx.SetAggregatedStats(overrideTable(term, 5, 9, 50)); err != nil {
					t.Fatal(err)
				}
			}
			if tt.withProfiler {
				if err := ctx.SetProfiler(profile.NewProfiler()); err != nil {
					t.Fatal(err)
				}
			}

			w, err := ctx.NormalizedWeight(q, tt.needsScores)
			if err != nil {
				t.Fatalf("NormalizedWeight: %v", err)
			}
			if w == nil {
				t.Fatal("nil weight")
			}
			delegated := delegate.weightCalls > 0
			if delegated != tt.wantDelegate {
				t.Errorf("delegate weight calls = %d, wantDelegate = %v",
					delegate.weightCalls, tt.wantDelegate)
			}
		})
	}
}

func TestOverrideStatsFeedScoring(t *testing.T) {
	// Same document on both contexts; only the aggregated table differs.
	// A rarer term globally must score higher.
	snap := buildSnapshot(t, map[string][]string{"a": {"go"}})
	term := index.Term{Field: "body", Text: "go"}
	q := query.NewTermQuery("body", "go")

	commonCtx, _ := newTestContext(t, snap)
	if err := commonCtx.SetAggregatedStats(overrideTable(term, 500, 500, 1000)); err != nil {
		t.Fatal(err)
	}
	rareCtx, _ := newTestContext(t, snap)
	if err := rareCtx.SetAggregatedStats(overrideTable(term, 2, 2, 1000)); err != nil {
		t.Fatal(err)
	}

	commonWeight, err := commonCtx.NormalizedWeight(q, true)
	if err != nil {
		t.Fatal(err)
	}
	rareWeight, err := rareCtx.NormalizedWeight(q, true)
	if err != nil {
		t.Fatal(err)
	}

	common := commonWeight.Score(0)
	rare := rareWeight.Score(0)
	if rare <= common {
		t.Errorf("rare term score %f should exceed common term score %f", rare, common)
	}
}

func TestRewriteRecordedOnlyOnSuccess(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{"a": {"go"}})

	t.Run("success", func(t *testing.T) {
		ctx, _ := newTestContext(t, snap)
		p := profile.NewProfiler()
		if err := ctx.SetProfiler(p); err != nil {
			t.Fatal(err)
		}
		q := &query.BooleanQuery{Must: []query.Query{query.NewTermQuery("body", "go")}}
		rewritten, err := ctx.Rewrite(q)
		if err != nil {
			t.Fatalf("Rewrite: %v", err)
		}
		if rewritten.String() != "body:go" {
			t.Errorf("rewritten = %s", rewritten)
		}
		records := p.Rewrites()
		if len(records) != 1 {
			t.Fatalf("got %d rewrite records, want 1", len(records))
		}
		if records[0].Original != q.String() || records[0].Rewritten != "body:go" {
			t.Errorf("record = %+v", records[0])
		}
	})

	t.Run("failure leaves no record", func(t *testing.T) {
		ctx, _ := newTestContext(t, snap)
		p := profile.NewProfiler()
		if err := ctx.SetProfiler(p); err != nil {
			t.Fatal(err)
		}
		if _, err := ctx.Rewrite(brokenQuery{}); err == nil {
			t.Fatal("expected rewrite error")
		}
		if len(p.Rewrites()) != 0 {
			t.Errorf("failed rewrite recorded: %+v", p.Rewrites())
		}
		if p.RewriteTime() != 0 {
			t.Errorf("failed rewrite contributed time %v", p.RewriteTime())
		}
	})
}

func TestProfiledWeightBuildsTree(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{
		"a": {"go", "fast"},
		"b": {"go"},
	})
	ctx, _ := newTestContext(t, snap)
	p := profile.NewProfiler()
	if err := ctx.SetProfiler(p); err != nil {
		t.Fatal(err)
	}

	q := &query.BooleanQuery{
		Must:   []query.Query{query.NewTermQuery("body", "go")},
		Should: []query.Query{query.NewTermQuery("body", "fast")},
	}
	w, err := ctx.NormalizedWeight(q, true)
	if err != nil {
		t.Fatalf("NormalizedWeight: %v", err)
	}

	matches := w.Matches()
	it := matches.Iterator()
	for it.HasNext() {
		w.Score(it.Next())
	}

	results := p.Results()
	if len(results) != 1 {
		t.Fatalf("got %d profile roots, want 1", len(results))
	}
	root := results[0]
	if len(root.Children) != 2 {
		t.Fatalf("root has %d children, want one per clause", len(root.Children))
	}
	if root.Breakdown.MatchCount == 0 {
		t.Error("root match phase never recorded")
	}
	if root.Breakdown.ScoreCount != 2 {
		t.Errorf("root score count = %d, want 2 scored docs", root.Breakdown.ScoreCount)
	}
	for _, child := range root.Children {
		if child.Breakdown.WeightTime < 0 {
			t.Errorf("child %s weight time negative", child.Query)
		}
	}
}

func TestExplainAlwaysDelegates(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{"a": {"go"}})
	ctx, delegate := newTestContext(t, snap)
	if err := ctx.SetAggregatedStats(overrideTable(index.Term{Field: "body", Text: "go"}, 5, 5, 10)); err != nil {
		t.Fatal(err)
	}
	if err := ctx.SetProfiler(profile.NewProfiler()); err != nil {
		t.Fatal(err)
	}

	expl, err := ctx.Explain(query.NewTermQuery("body", "go"), 0)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !expl.Match {
		t.Error("expected a matching explanation")
	}
	if delegate.explainCalls != 1 {
		t.Errorf("delegate explain calls = %d, want 1", delegate.explainCalls)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	snap := buildSnapshot(t, map[string][]string{"a": {"go"}})
	ctx, _ := newTestContext(t, snap)

	if err := ctx.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := ctx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	// The snapshot stays usable for other holders.
	if snap.DocCount() != 1 {
		t.Errorf("snapshot DocCount = %d after close", snap.DocCount())
	}
}
