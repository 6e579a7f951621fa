// Command ingestion starts the document ingestion HTTP service.
//
// The service accepts documents via POST /api/v1/documents, validates them
// against the field mapping, records them as PENDING in PostgreSQL, and
// publishes them to Kafka for the indexer.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/app"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/middleware"
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	mapping, err := app.Mapping(cfg)
	if err != nil {
		slog.Error("invalid analysis configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	var statuses consumer.StatusRecorder
	var reader handler.StatusReader
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, documents are published without status tracking", "error", err)
		checker.Register("postgres", health.PingCheck(nil, health.StatusDegraded))
	} else {
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare document status schema", "error", err)
			os.Exit(1)
		}
		statuses = db
		reader = db
		checker.Register("postgres", health.PingCheck(db.Ping, health.StatusDown))
		slog.Info("connected to postgres")
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIngest)

	pub := publisher.New(statuses, producer, cfg.Indexer.NumShards)
	checker.Register("kafka", health.PingCheck(pub.Check, health.StatusDown))

	h := handler.New(pub, mapping, reader)
	mux := http.NewServeMux()
	h.Register(mux)
	checker.Mount(mux)

	m := metrics.New(nil)
	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
