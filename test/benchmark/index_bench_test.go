// Package benchmark contains Go benchmarks for the in-memory index, the
// tokenizer, and the search pipeline, measuring throughput and allocation
// behaviour.
package benchmark

import (
	"fmt"
	"testing"
	"time"

	"github.com/strata-search/strata/internal/index"
	"github.com/strata-search/strata/internal/indexer"
	"github.com/strata-search/strata/internal/indexer/tokenizer"
	"github.com/strata-search/strata/pkg/config"
)

func analyzed(title, body string) map[string][]string {
	return map[string][]string{
		"title": tokenizer.Analyze(title),
		"body":  tokenizer.Analyze(body),
	}
}

// BenchmarkMemoryAddDocument measures per-document insert throughput into
// the in-memory inverted index, excluding analysis.
func BenchmarkMemoryAddDocument(b *testing.B) {
	fields := analyzed("benchmark title", "this is a benchmark document with several terms for testing the indexing performance of our memory index")
	m := index.NewMemory()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.AddDocument(fmt.Sprintf("doc-%d", i), fields)
	}
}

// BenchmarkEngineIndexDocument measures full-path indexing throughput
// including analysis and flush buffering.
func BenchmarkEngineIndexDocument(b *testing.B) {
	eng, err := indexer.NewEngine(config.IndexerConfig{
		DataDir:        b.TempDir(),
		NumShards:      1,
		SegmentMaxSize: 1 << 30,
		FlushInterval:  time.Hour,
	})
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		err := eng.IndexDocument(indexer.Document{
			ID:    fmt.Sprintf("doc-%d", i),
			Title: "distributed search engines",
			Body:  "search engine with distributed indexing and query processing across shards",
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSnapshot measures the cost of materialising a point-in-time
// view over 10 000 documents.
func BenchmarkSnapshot(b *testing.B) {
	m := index.NewMemory()
	fields := analyzed("distributed search", "search engine with distributed indexing and query processing")
	for i := 0; i < 10000; i++ {
		m.AddDocument(fmt.Sprintf("doc-%d", i), fields)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snap := m.Snapshot()
		_ = snap
	}
}
