package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/strata-search/strata/pkg/config"
	"github.com/strata-search/strata/pkg/kafka"
)

// SnapshotSink receives the aggregator's dirty statistics on each
// periodic save.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, stats []QueryStats) error
}

// Aggregator consumes the analytics event stream and folds it into
// per-query statistics. Folded counts are flushed to the sink on an
// interval; flushed deltas reset so the sink accumulates.
type Aggregator struct {
	consumer *kafka.Consumer
	sink     SnapshotSink
	logger   *slog.Logger

	mu    sync.Mutex
	stats map[string]*QueryStats
	dirty map[string]*QueryStats
}

// NewAggregator wires a Kafka consumer on the analytics topic. sink may
// be nil when persistence is disabled.
func NewAggregator(kafkaCfg config.KafkaConfig, sink SnapshotSink) *Aggregator {
	a := &Aggregator{
		sink:   sink,
		logger: slog.Default().With("component", "analytics_aggregator"),
		stats:  make(map[string]*QueryStats),
		dirty:  make(map[string]*QueryStats),
	}
	a.consumer = kafka.NewConsumer(kafkaCfg, kafkaCfg.Topics.AnalyticsEvents, a.handleMessage)
	return a
}

// Start runs the consume loop until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("starting analytics aggregator")
	return a.consumer.Start(ctx)
}

// Close shuts down the underlying consumer.
func (a *Aggregator) Close() error {
	return a.consumer.Close()
}

func (a *Aggregator) handleMessage(ctx context.Context, key, value []byte) error {
	event, err := kafka.DecodeJSON[SearchEvent](value)
	if err != nil {
		a.logger.Error("dropping malformed analytics event", "error", err)
		return nil
	}
	a.Apply(event)
	return nil
}

// Apply folds one event into the aggregated statistics.
func (a *Aggregator) Apply(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fold(a.stats, event)
	a.fold(a.dirty, event)
}

func (a *Aggregator) fold(into map[string]*QueryStats, event SearchEvent) {
	qs, ok := into[event.Query]
	if !ok {
		qs = &QueryStats{Query: event.Query}
		into[event.Query] = qs
	}
	qs.Count++
	if event.TotalHits == 0 {
		qs.ZeroHits++
	}
	if event.CacheHit {
		qs.CacheHits++
	}
	qs.TotalTookMs += event.TookMs
	if event.Timestamp.After(qs.LastSeen) {
		qs.LastSeen = event.Timestamp
	}
}

// TopQueries returns the most frequent queries seen since startup,
// ordered by count descending.
func (a *Aggregator) TopQueries(limit int) []QueryStats {
	a.mu.Lock()
	out := make([]QueryStats, 0, len(a.stats))
	for _, qs := range a.stats {
		copied := *qs
		if copied.Count > 0 {
			copied.AvgTookMs = copied.TotalTookMs / float64(copied.Count)
		}
		out = append(out, copied)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ZeroHitQueries returns queries that never produced a hit, a direct
// signal of content gaps.
func (a *Aggregator) ZeroHitQueries(limit int) []QueryStats {
	a.mu.Lock()
	out := make([]QueryStats, 0)
	for _, qs := range a.stats {
		if qs.ZeroHits == qs.Count {
			out = append(out, *qs)
		}
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// StartPeriodicSave flushes dirty statistics to the sink on the given
// interval until ctx is done, with a final flush at shutdown.
func (a *Aggregator) StartPeriodicSave(ctx context.Context, interval time.Duration) {
	if a.sink == nil {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				a.flush(context.Background())
				return
			case <-ticker.C:
				a.flush(ctx)
			}
		}
	}()
}

func (a *Aggregator) flush(ctx context.Context) {
	a.mu.Lock()
	if len(a.dirty) == 0 {
		a.mu.Unlock()
		return
	}
	batch := make([]QueryStats, 0, len(a.dirty))
	for _, qs := range a.dirty {
		batch = append(batch, *qs)
	}
	a.dirty = make(map[string]*QueryStats)
	a.mu.Unlock()

	if err := a.sink.SaveSnapshot(ctx, batch); err != nil {
		a.logger.Error("failed to persist analytics snapshot",
			"queries", len(batch),
			"error", err,
		)
		return
	}
	a.logger.Debug("analytics snapshot persisted", "queries", len(batch))
}
