package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/app"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service",
		"num_shards", cfg.Indexer.NumShards,
		"compression", cfg.Indexer.Compression,
	)

	mapping, err := app.Mapping(cfg)
	if err != nil {
		slog.Error("invalid analysis configuration", "error", err)
		os.Exit(1)
	}
	router, err := shard.NewRouter(cfg.Indexer, mapping, cfg.Similarity.DiscountOverlaps)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}
	defer router.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	router.SetMetrics(m)
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		if err != nil {
			slog.Error("metrics server failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	var statuses consumer.StatusRecorder
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, document status tracking disabled", "error", err)
	} else {
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare document status schema", "error", err)
			os.Exit(1)
		}
		statuses = db
		slog.Info("document status tracking enabled", "database", cfg.Postgres.Database)
	}

	completions := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer completions.Close()

	for shardID, engine := range router.Engines() {
		engine.StartFlushLoop(ctx)
		slog.Info("flush loop started", "shard_id", shardID)
	}
	go reportLoop(ctx, router, m, cfg.Indexer.FlushInterval)

	var opts []kafka.Option
	if topic := cfg.Kafka.Topics.DeadLetter; topic != "" {
		deadLetters := kafka.NewProducer(cfg.Kafka, topic)
		defer deadLetters.Close()
		opts = append(opts, kafka.WithDeadLetter(deadLetters))
	}

	handler := consumer.HandleMessageSharded(router, statuses, completions, m)
	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentIngest,
		handler,
		opts...,
	)
	defer kafkaConsumer.Close()

	indexConsumer := consumer.New(kafkaConsumer)

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
		"completions", cfg.Kafka.Topics.IndexComplete,
		"dead_letter", cfg.Kafka.Topics.DeadLetter,
	)

	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing all shards before shutdown")
	if err := router.FlushAll(); err != nil {
		slog.Error("final flush failed", "error", err)
	}

	slog.Info("indexer service stopped")
}

func reportLoop(ctx context.Context, router *shard.Router, m *metrics.Metrics, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			router.Report(m)
		}
	}
}
