package dfs

import (
	"context"
	"testing"

	"github.com/strata-search/strata/internal/index"
	"github.com/strata-search/strata/internal/search/query"
)

func buildShard(t *testing.T, docs map[string][]string) *index.Snapshot {
	t.Helper()
	m := index.NewMemory()
	for id, body := range docs {
		m.AddDocument(id, map[string][]string{"body": body})
	}
	return m.Snapshot()
}

func TestAggregateSumsAcrossShards(t *testing.T) {
	shard1 := buildShard(t, map[string][]string{
		"a": {"go", "fast", "go"},
		"b": {"slow"},
	})
	shard2 := buildShard(t, map[string][]string{
		"c": {"go"},
	})

	q := query.NewTermQuery("body", "go")
	stats, err := Aggregate(context.Background(), q, []*index.Snapshot{shard1, shard2})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	ts, ok := stats.Term(index.Term{Field: "body", Text: "go"})
	if !ok {
		t.Fatal("aggregated table missing body:go")
	}
	if ts.DocFreq != 2 {
		t.Errorf("DocFreq = %d, want 2", ts.DocFreq)
	}
	if ts.TotalTermFreq != 3 {
		t.Errorf("TotalTermFreq = %d, want 3", ts.TotalTermFreq)
	}
	if stats.MaxDoc() != 3 {
		t.Errorf("MaxDoc = %d, want 3", stats.MaxDoc())
	}

	fs, ok := stats.Field("body")
	if !ok {
		t.Fatal("aggregated table missing body field stats")
	}
	if fs.DocCount != 3 {
		t.Errorf("field DocCount = %d, want 3", fs.DocCount)
	}
	if fs.SumTotalTermFreq != 5 {
		t.Errorf("field SumTotalTermFreq = %d, want 5", fs.SumTotalTermFreq)
	}
}

func TestAggregateOnlyCoversScoringTerms(t *testing.T) {
	shard := buildShard(t, map[string][]string{
		"a": {"go", "slow"},
	})
	q := &query.BooleanQuery{
		Must:    []query.Query{query.NewTermQuery("body", "go")},
		MustNot: []query.Query{query.NewTermQuery("body", "slow")},
	}
	stats, err := Aggregate(context.Background(), q, []*index.Snapshot{shard})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if _, ok := stats.Term(index.Term{Field: "body", Text: "go"}); !ok {
		t.Error("scoring term body:go missing from table")
	}
	if _, ok := stats.Term(index.Term{Field: "body", Text: "slow"}); ok {
		t.Error("excluded term body:slow must not be aggregated")
	}
	if stats.NumTerms() != 1 {
		t.Errorf("NumTerms = %d, want 1", stats.NumTerms())
	}
}

func TestAggregateTermAbsentEverywhere(t *testing.T) {
	shard := buildShard(t, map[string][]string{"a": {"other"}})
	q := query.NewTermQuery("body", "missing")

	stats, err := Aggregate(context.Background(), q, []*index.Snapshot{shard})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	ts, ok := stats.Term(index.Term{Field: "body", Text: "missing"})
	if !ok {
		t.Fatal("requested term should be present with zero counts")
	}
	if ts.DocFreq != 0 || ts.TotalTermFreq != 0 {
		t.Errorf("stats = %+v, want zeros", ts)
	}
}

func TestNewCopiesInputMaps(t *testing.T) {
	terms := map[index.Term]index.TermStatistics{
		{Field: "body", Text: "go"}: {Term: index.Term{Field: "body", Text: "go"}, DocFreq: 1},
	}
	stats := New(terms, nil, 1)

	terms[index.Term{Field: "body", Text: "go"}] = index.TermStatistics{DocFreq: 99}
	ts, _ := stats.Term(index.Term{Field: "body", Text: "go"})
	if ts.DocFreq != 1 {
		t.Errorf("DocFreq = %d after caller mutation, want 1", ts.DocFreq)
	}
}
