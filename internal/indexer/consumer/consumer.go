// Package consumer ingests documents from the Kafka ingest topic into the
// shard router.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/strata-search/strata/internal/indexer"
	"github.com/strata-search/strata/internal/indexer/shard"
	"github.com/strata-search/strata/pkg/config"
	"github.com/strata-search/strata/pkg/kafka"
	"github.com/strata-search/strata/pkg/metrics"
)

// IngestEvent is the wire format of a document published to the ingest topic.
type IngestEvent struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// Ingester consumes ingest events and indexes them through the router.
type Ingester struct {
	consumer *kafka.Consumer
	router   *shard.Router
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewIngester wires a Kafka consumer on the document ingest topic to the
// shard router.
func NewIngester(cfg config.KafkaConfig, router *shard.Router, m *metrics.Metrics) *Ingester {
	ing := &Ingester{
		router:  router,
		metrics: m,
		logger:  slog.Default().With("component", "ingester"),
	}
	ing.consumer = kafka.NewConsumer(cfg, cfg.Topics.DocumentIngest, ing.handleMessage)
	return ing
}

// Start runs the consume loop until ctx is cancelled.
func (i *Ingester) Start(ctx context.Context) error {
	i.logger.Info("starting document ingest consumer")
	return i.consumer.Start(ctx)
}

// Close shuts down the underlying Kafka reader.
func (i *Ingester) Close() error {
	return i.consumer.Close()
}

func (i *Ingester) handleMessage(ctx context.Context, key, value []byte) error {
	event, err := kafka.DecodeJSON[IngestEvent](value)
	if err != nil {
		// Malformed events are logged and dropped, not retried.
		i.logger.Error("dropping malformed ingest event",
			"key", string(key),
			"error", err,
		)
		return nil
	}
	if event.DocumentID == "" {
		i.logger.Error("dropping ingest event without document_id", "key", string(key))
		return nil
	}

	doc := indexer.Document{
		ID:    event.DocumentID,
		Title: event.Title,
		Body:  event.Body,
	}
	if err := i.router.Index(doc); err != nil {
		return fmt.Errorf("indexing ingest event %q: %w", event.DocumentID, err)
	}
	i.metrics.DocsIndexedTotal.Inc()
	return nil
}
