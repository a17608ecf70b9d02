package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/terra-telemetry/internal/adapter/httpapi"
	kafkaadapter "github.com/couchcryptid/terra-telemetry/internal/adapter/kafka"
	"github.com/couchcryptid/terra-telemetry/internal/aggregate"
	"github.com/couchcryptid/terra-telemetry/internal/config"
	"github.com/couchcryptid/terra-telemetry/internal/history"
	"github.com/couchcryptid/terra-telemetry/internal/observability"
	"github.com/couchcryptid/terra-telemetry/internal/snapshot"
	"github.com/couchcryptid/terra-telemetry/internal/store"
	"github.com/couchcryptid/terra-telemetry/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feeds := upstream.NewClient(
		cfg.FeedTimeout,
		upstream.DefaultURLs(cfg.WeatherLat, cfg.WeatherLon),
		logger,
		metrics,
	)
	aggregator := aggregate.New(feeds, logger, metrics)

	// Persistence is optional (DATABASE_URL empty disables it). The service
	// still aggregates and streams; only caching and history are lost.
	var (
		st      store.Store
		querier httpapi.HistoryQuerier
	)
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		st = pg
		querier = history.NewEngine(pg, logger, metrics)
		logger.Info("persistence enabled")
	} else {
		logger.Info("persistence disabled")
	}

	// Downstream snapshot republishing (feature-flagged via KAFKA_BROKERS).
	var publisher snapshot.Publisher
	var kafkaPub *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPub = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaSnapshotTopic, logger)
		publisher = kafkaPub
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSnapshotTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	snapshots := snapshot.New(aggregator, st, publisher, clock, cfg.FreshnessWindow, logger, metrics)

	handlers := httpapi.NewHandlers(
		snapshots,
		querier,
		feeds,
		clock,
		cfg.StreamInterval,
		cfg.StreamKeepalive,
		logger,
		metrics,
	)
	srv := httpapi.NewServer(cfg.HTTPAddr, handlers, snapshots, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if st != nil {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
