package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/config"
	"github.com/ricirt/community-digest/internal/db"
	"github.com/ricirt/community-digest/internal/metrics"
	"github.com/ricirt/community-digest/internal/provider"
	"github.com/ricirt/community-digest/internal/ratelimiter"
	"github.com/ricirt/community-digest/internal/repository"
	"github.com/ricirt/community-digest/internal/worker"
)

func main() {
	bootLogger, _ := zap.NewProduction()

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal("failed to load config", zap.Error(err))
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		bootLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.With(zap.String("component", "consumer"))

	// ---- database: the consumer refuses to start without a reachable store ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("database check failed", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.Database.URL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database check passed")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := repository.NewPgItemRepository(pool)

	limiter := ratelimiter.New(map[ratelimiter.Upstream]float64{
		ratelimiter.UpstreamEnrichment: cfg.LLM.RatePerSec,
	})
	chat := provider.NewChatClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout, limiter)
	enricher := provider.NewBreakerEnricher(chat, provider.BreakerConfig{
		FailureThreshold: cfg.LLM.BreakerFailures,
		OpenTimeout:      cfg.LLM.BreakerTimeout,
	}, logger.Named("enrichment"))

	qcfg := cfg.Broker.Queue("community-digest-consumer")
	qcfg.MaxAckPending = cfg.Consumer.Workers
	if err := qcfg.Validate(); err != nil {
		logger.Fatal("invalid queue config", zap.Error(err))
	}

	// ---- optional metrics endpoint ----
	var metricsSrv *http.Server
	if port := cfg.Consumer.MetricsPort; port != "" {
		metricsSrv = &http.Server{
			Addr:              ":" + port,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	// ---- worker pool ----
	wp := worker.NewPool(cfg.Consumer.Workers, worker.QueueDialer(qcfg), enricher, repo, worker.Config{
		ReconnectDelay: cfg.Consumer.ReconnectDelay,
		RequeueDelay:   cfg.Consumer.RequeueDelay,
		MaxDeliveries:  cfg.Consumer.MaxDeliveries,
	}, logger, m.WorkerHooks())
	wp.Start(ctx)
	logger.Info("consumer started",
		zap.Int("workers", cfg.Consumer.Workers),
		zap.String("queue", qcfg.Name),
		zap.Int("max_deliveries", cfg.Consumer.MaxDeliveries),
	)

	// ---- graceful shutdown ----
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Workers settle their in-flight message, then drain their connections.
	wp.Stop()
	if err := wp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("worker pool exited with error", zap.Error(err))
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	logger.Info("consumer stopped cleanly")
}
