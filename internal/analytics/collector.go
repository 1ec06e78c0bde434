package analytics

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/strata-search/strata/pkg/config"
	"github.com/strata-search/strata/pkg/kafka"
)

// Collector publishes search events to the analytics topic. Recording
// never blocks the search path: events are buffered and dropped with a
// log line when the buffer is full.
type Collector struct {
	producer *kafka.Producer
	events   chan SearchEvent
	done     chan struct{}
	logger   *slog.Logger
}

// NewCollector starts a collector publishing to the configured analytics
// topic.
func NewCollector(kafkaCfg config.KafkaConfig, bufferSize int) *Collector {
	c := &Collector{
		producer: kafka.NewProducer(kafkaCfg, kafkaCfg.Topics.AnalyticsEvents),
		events:   make(chan SearchEvent, bufferSize),
		done:     make(chan struct{}),
		logger:   slog.Default().With("component", "analytics_collector"),
	}
	go c.publishLoop()
	return c
}

// Record enqueues a search event. Drops the event when the buffer is full.
func (c *Collector) Record(event SearchEvent) {
	select {
	case c.events <- event:
	default:
		c.logger.Warn("analytics buffer full, dropping event", "query", event.Query)
	}
}

// maxPublishBatch caps how many buffered events go out per broker round
// trip.
const maxPublishBatch = 64

func (c *Collector) publishLoop() {
	batch := make([]kafka.Message, 0, maxPublishBatch)
	for event := range c.events {
		batch = batch[:0]
		batch = c.appendEncoded(batch, event)

		// Drain whatever else is already buffered without blocking.
	drain:
		for len(batch) < maxPublishBatch {
			select {
			case ev, ok := <-c.events:
				if !ok {
					break drain
				}
				batch = c.appendEncoded(batch, ev)
			default:
				break drain
			}
		}

		if err := c.producer.PublishBatch(context.Background(), batch); err != nil {
			c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
		}
	}
	close(c.done)
}

func (c *Collector) appendEncoded(batch []kafka.Message, event SearchEvent) []kafka.Message {
	value, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to encode analytics event", "error", err)
		return batch
	}
	return append(batch, kafka.Message{Key: event.Query, Value: value})
}

// Close drains buffered events and shuts down the producer.
func (c *Collector) Close() error {
	close(c.events)
	<-c.done
	return c.producer.Close()
}
