package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/api"
	"github.com/ricirt/community-digest/internal/config"
	"github.com/ricirt/community-digest/internal/db"
	"github.com/ricirt/community-digest/internal/domain"
	"github.com/ricirt/community-digest/internal/metrics"
	"github.com/ricirt/community-digest/internal/producer"
	"github.com/ricirt/community-digest/internal/queue"
	"github.com/ricirt/community-digest/internal/ratelimiter"
	"github.com/ricirt/community-digest/internal/render"
	"github.com/ricirt/community-digest/internal/repository"
	"github.com/ricirt/community-digest/internal/service"
	"github.com/ricirt/community-digest/internal/source"
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
	logger = logger.With(zap.String("component", "api"))

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.Database.URL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- broker ----
	if cfg.Broker.Embedded {
		srvCfg, err := cfg.Broker.EmbeddedServer()
		if err != nil {
			logger.Fatal("invalid embedded broker config", zap.Error(err))
		}
		broker, err := queue.NewEmbeddedServer(srvCfg)
		if err != nil {
			logger.Fatal("failed to start embedded broker", zap.Error(err))
		}
		defer broker.Shutdown()
		logger.Info("embedded broker started", zap.String("url", broker.ClientURL()))
	}

	qcfg := cfg.Broker.Queue("community-digest-api")
	if err := qcfg.Validate(); err != nil {
		logger.Fatal("invalid queue config", zap.Error(err))
	}
	pub := queue.NewPublisher(qcfg, logger.Named("publisher"))
	defer pub.Close() //nolint:errcheck

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := repository.NewPgItemRepository(pool)
	limiter := ratelimiter.New(map[ratelimiter.Upstream]float64{
		ratelimiter.UpstreamSource: cfg.Source.RatePerSec,
	})
	src := source.NewRedditClient(source.Config{
		BaseURL:      cfg.Source.BaseURL,
		TokenURL:     cfg.Source.TokenURL,
		ClientID:     cfg.Source.ClientID,
		ClientSecret: cfg.Source.ClientSecret,
		UserAgent:    cfg.Source.UserAgent,
		Timeout:      cfg.Source.Timeout,
	}, limiter)

	prod := producer.New(src, pub, render.New(cfg.Source.TopComments), producer.Config{
		HotLimit:          cfg.Source.HotLimit,
		ItemsPerCommunity: cfg.Source.ItemsPerCommunity,
		TopComments:       cfg.Source.TopComments,
	}, logger.Named("producer"), m.ProducerHooks())

	svc := service.NewDigestService(repo, prod, pub, logger, func(n uint64) {
		m.QueueDepth.Set(float64(n))
	})

	// ---- background workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	schedulerDone := make(chan struct{})
	if cfg.Schedule.Spec != "" {
		sw, err := worker.NewSchedulerWorker(cfg.Schedule.Spec, domain.UpdateRequest{
			Communities:     cfg.Schedule.Communities,
			TimeWindowHours: cfg.Schedule.WindowHours,
		}, svc, logger.Named("scheduler"))
		if err != nil {
			logger.Fatal("invalid schedule", zap.Error(err))
		}
		go func() {
			defer close(schedulerDone)
			sw.Run(workerCtx)
		}()
	} else {
		close(schedulerDone)
	}

	// ---- HTTP server ----
	router := api.NewRouter(api.RouterConfig{UpdateRateLimit: cfg.Server.UpdateRateLimit}, svc, pool, m, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests; in-flight update batches finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the scheduler and wait for a running batch.
	cancelWorkers()
	<-schedulerDone

	logger.Info("server stopped cleanly")
}
