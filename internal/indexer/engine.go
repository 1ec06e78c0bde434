// Package indexer owns the per-shard indexing engine: analysis, the
// in-memory index, and segment durability.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/strata-search/strata/internal/index"
	"github.com/strata-search/strata/internal/indexer/segment"
	"github.com/strata-search/strata/internal/indexer/tokenizer"
	"github.com/strata-search/strata/pkg/config"
	"github.com/strata-search/strata/pkg/metrics"
)

// Document is the unit of ingestion: an external ID plus the indexed fields.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Engine indexes documents into an in-memory inverted index and persists
// them as immutable segments. Searches run against point-in-time Snapshots.
type Engine struct {
	mem     *index.Memory
	writer  *segment.Writer
	cfg     config.IndexerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	pendingMu    sync.Mutex
	pendingDocs  []segment.DocRecord
	pendingTerms map[index.Term][]segment.TermPosting
	pendingSize  int64
}

// NewEngine creates an Engine and recovers any existing segments from the
// configured data directory.
func NewEngine(cfg config.IndexerConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		mem:          index.NewMemory(),
		writer:       segment.NewWriter(cfg.DataDir),
		cfg:          cfg,
		logger:       slog.Default().With("component", "indexer"),
		pendingTerms: make(map[index.Term][]segment.TermPosting),
	}
	if err := e.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("recovering segments: %w", err)
	}
	return e, nil
}

// SetMetrics attaches the process metrics registry so segment flushes are
// counted. Optional.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// IndexDocument analyzes and indexes one document, buffering its postings
// for the next segment flush. A flush is triggered when the pending buffer
// exceeds the configured segment size.
func (e *Engine) IndexDocument(doc Document) error {
	fields := map[string][]string{
		"title": tokenizer.Analyze(doc.Title),
		"body":  tokenizer.Analyze(doc.Body),
	}
	e.mem.AddDocument(doc.ID, fields)

	e.pendingMu.Lock()
	lengths := make(map[string]int, len(fields))
	occurrences := make(map[index.Term]*segment.TermPosting)
	for field, tokens := range fields {
		lengths[field] = len(tokens)
		for pos, tok := range tokens {
			t := index.Term{Field: field, Text: tok}
			occ, ok := occurrences[t]
			if !ok {
				occ = &segment.TermPosting{DocID: doc.ID}
				occurrences[t] = occ
			}
			occ.Frequency++
			occ.Positions = append(occ.Positions, pos)
			e.pendingSize += 16
		}
	}
	e.pendingDocs = append(e.pendingDocs, segment.DocRecord{ID: doc.ID, FieldLengths: lengths})
	for t, occ := range occurrences {
		e.pendingTerms[t] = append(e.pendingTerms[t], *occ)
	}
	e.pendingSize += int64(len(doc.ID) + 64)
	pendingSize := e.pendingSize
	needsFlush := pendingSize >= e.cfg.SegmentMaxSize
	e.pendingMu.Unlock()

	e.logger.Debug("document indexed",
		"doc_id", doc.ID,
		"title_tokens", lengths["title"],
		"body_tokens", lengths["body"],
	)

	if needsFlush {
		e.logger.Info("pending buffer reached segment size, flushing",
			"pending_bytes", pendingSize,
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return fmt.Errorf("flushing segment: %w", err)
		}
	}
	return nil
}

// Flush persists all documents indexed since the previous flush into a new
// segment file. A flush with nothing pending is a no-op.
func (e *Engine) Flush() error {
	e.pendingMu.Lock()
	docs := e.pendingDocs
	terms := e.pendingTerms
	e.pendingDocs = nil
	e.pendingTerms = make(map[index.Term][]segment.TermPosting)
	e.pendingSize = 0
	e.pendingMu.Unlock()

	if len(docs) == 0 {
		return nil
	}

	entries := make([]segment.TermEntry, 0, len(terms))
	for t, postings := range terms {
		entries = append(entries, segment.TermEntry{
			Field:    t.Field,
			Text:     t.Text,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Field != entries[j].Field {
			return entries[i].Field < entries[j].Field
		}
		return entries[i].Text < entries[j].Text
	})

	segmentName, err := e.writer.Write(docs, entries)
	if err != nil {
		if e.metrics != nil {
			e.metrics.SegmentFlushesTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("writing segment: %w", err)
	}
	if e.metrics != nil {
		e.metrics.SegmentFlushesTotal.WithLabelValues("success").Inc()
	}
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"docs", len(docs),
		"terms", len(entries),
	)
	return nil
}

// Snapshot acquires an immutable point-in-time view of the shard for query
// execution.
func (e *Engine) Snapshot() *index.Snapshot {
	return e.mem.Snapshot()
}

// DocCount returns the number of documents currently indexed.
func (e *Engine) DocCount() int {
	return e.mem.DocCount()
}

// StartFlushLoop periodically flushes pending documents until ctx is done,
// performing a final flush on shutdown.
func (e *Engine) StartFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// Close flushes any pending documents.
func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
		return err
	}
	return nil
}

// loadExistingSegments replays every segment file in the data directory
// into the in-memory index.
func (e *Engine) loadExistingSegments() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".stseg") {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)

	loaded := 0
	for _, name := range segFiles {
		path := filepath.Join(e.cfg.DataDir, name)
		if err := e.loadSegment(path); err != nil {
			e.logger.Error("failed to load segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		loaded++
	}
	if loaded > 0 {
		e.logger.Info("segment recovery complete",
			"segments_loaded", loaded,
			"docs", e.mem.DocCount(),
		)
	}
	return nil
}

func (e *Engine) loadSegment(path string) error {
	reader, err := segment.OpenReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	termEntries, err := reader.ReadAll()
	if err != nil {
		return err
	}

	// Regroup postings per document so ordinals are reassigned consistently.
	byDoc := make(map[string]map[index.Term]index.Occurrence)
	for _, te := range termEntries {
		t := index.Term{Field: te.Field, Text: te.Text}
		for _, p := range te.Postings {
			occ, ok := byDoc[p.DocID]
			if !ok {
				occ = make(map[index.Term]index.Occurrence)
				byDoc[p.DocID] = occ
			}
			occ[t] = index.Occurrence{Frequency: p.Frequency, Positions: p.Positions}
		}
	}
	for _, doc := range reader.Docs() {
		e.mem.RestoreDocument(doc.ID, doc.FieldLengths, byDoc[doc.ID])
	}
	return nil
}
