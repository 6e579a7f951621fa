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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/app"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/searcher/builder"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/redis"
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
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"num_shards", cfg.Indexer.NumShards,
		"similarity", cfg.Similarity.Default,
	)

	m := metrics.New(nil)
	observer := executor.NewMetricsObserver(m)

	mapping, err := app.Mapping(cfg)
	if err != nil {
		slog.Error("invalid analysis configuration", "error", err)
		os.Exit(1)
	}
	resolver, model, err := app.Resolver(cfg.Similarity, observer)
	if err != nil {
		slog.Error("invalid similarity configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("similarity configured", "model", model.Descriptor().String())

	router, err := shard.NewRouter(cfg.Indexer, mapping, cfg.Similarity.DiscountOverlaps)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}
	defer router.Close()
	slog.Info("shard router initialized", "data_dir", cfg.Indexer.DataDir)

	var queryCache *cache.QueryCache
	var redisPing func(context.Context) error
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis, m)
		redisPing = redisClient.Ping
		slog.Info("search cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reloadLoop(ctx, router, queryCache, m, cfg.Search.ReloadInterval)

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

	checker := health.NewChecker()
	checker.Register("index_engine", health.LeavesCheck(router.Stats))
	checker.Register("redis", health.PingCheck(redisPing, health.StatusDegraded))

	exec := executor.New(router, model,
		executor.WithQueryCache(search.NewQueryCache(cfg.Search.QueryCacheSize)),
		executor.WithObserver(observer),
		executor.WithTimeout(cfg.Search.TimeoutPerShard),
	)
	h := handler.New(exec, queryCache, builder.Env{
		Context:     mapping,
		Resolver:    resolver,
		Observer:    observer,
		DefaultBase: cfg.Similarity.StepwiseBase,
	}, handler.Config{
		DefaultField: cfg.Mapping.DefaultField,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
		Metrics:      m,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	checker.Mount(mux)

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

// reloadLoop picks up segments the indexer flushed. Cached results are
// dropped whenever new segments appear.
func reloadLoop(ctx context.Context, router *shard.Router, queryCache *cache.QueryCache, m *metrics.Metrics, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if added := router.ReloadAll(); added > 0 && queryCache != nil {
				if err := queryCache.Invalidate(ctx); err != nil {
					slog.Warn("cache invalidation after reload failed", "error", err)
				}
			}
			router.Report(m)
		}
	}
}
