// Command searchd runs the search node: Kafka document ingestion, the
// sharded index, the search API, and the query analytics pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/strata-search/strata/internal/analytics"
	analyticsstore "github.com/strata-search/strata/internal/analytics/store"
	ingest "github.com/strata-search/strata/internal/indexer/consumer"
	"github.com/strata-search/strata/internal/indexer/shard"
	"github.com/strata-search/strata/internal/searcher/cache"
	"github.com/strata-search/strata/internal/searcher/executor"
	searchhandler "github.com/strata-search/strata/internal/searcher/handler"
	"github.com/strata-search/strata/pkg/config"
	"github.com/strata-search/strata/pkg/health"
	"github.com/strata-search/strata/pkg/logger"
	"github.com/strata-search/strata/pkg/metrics"
	"github.com/strata-search/strata/pkg/middleware"
	"github.com/strata-search/strata/pkg/postgres"
	"github.com/strata-search/strata/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "searchd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := slog.Default().With("component", "searchd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	mux := http.NewServeMux()

	router, err := shard.NewRouter(cfg.Indexer)
	if err != nil {
		return fmt.Errorf("initialising shards: %w", err)
	}
	defer router.Close()
	router.SetMetrics(m)
	router.StartFlushLoops(ctx)
	m.ActiveShards.Set(float64(router.NumShards()))

	checker := health.NewChecker()
	checker.Register("shards", func(ctx context.Context) health.ComponentHealth {
		total := 0
		for i, count := range router.DocCounts() {
			m.ShardDocCount.WithLabelValues(fmt.Sprintf("%d", i)).Set(float64(count))
			total += count
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d shards, %d docs", router.NumShards(), total),
		}
	})

	// Redis is optional; searches fall through to execution without it.
	var redisClient *redis.Client
	if rc, err := redis.NewClient(cfg.Redis); err != nil {
		log.Warn("redis unavailable, query cache disabled", "error", err)
	} else {
		redisClient = rc
		defer redisClient.Close()
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	queryCache := cache.New(redisClient, cfg.Redis.CacheTTL, m)

	ingester := ingest.NewIngester(cfg.Kafka, router, m)
	go func() {
		if err := ingester.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error("ingest consumer stopped", "error", err)
		}
	}()
	defer ingester.Close()

	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		collector = analytics.NewCollector(cfg.Kafka, cfg.Analytics.BufferSize)
		defer collector.Close()

		var sink analytics.SnapshotSink
		if pg, err := postgres.New(cfg.Postgres); err != nil {
			log.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
		} else {
			defer pg.Close()
			st, err := analyticsstore.New(pg)
			if err != nil {
				return fmt.Errorf("initialising analytics store: %w", err)
			}
			sink = st
			checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
				if err := pg.DB.PingContext(ctx); err != nil {
					return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp}
			})
		}

		aggregator := analytics.NewAggregator(cfg.Kafka, sink)
		go func() {
			if err := aggregator.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error("analytics aggregator stopped", "error", err)
			}
		}()
		defer aggregator.Close()
		aggregator.StartPeriodicSave(ctx, cfg.Analytics.SnapshotInterval)
		analytics.NewHandler(aggregator).Register(mux)
	}

	exec := executor.New(router, cfg.Search, m)
	searchhandler.New(exec, queryCache, collector, cfg.Search, m).Register(mux)

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	handler := middleware.RequestID(
		middleware.Metrics(m)(
			middleware.Timeout(cfg.Server.WriteTimeout)(mux)))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("search node listening", "port", cfg.Server.Port, "shards", router.NumShards())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	if metricsShutdown != nil {
		if err := metricsShutdown(shutdownCtx); err != nil {
			log.Error("metrics shutdown failed", "error", err)
		}
	}
	// Give the flush loops a moment to run their final flush before the
	// deferred router.Close repeats it.
	time.Sleep(100 * time.Millisecond)
	return nil
}
