package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pageza/platecoach/backend/config"
	"github.com/pageza/platecoach/backend/internal/audit"
	"github.com/pageza/platecoach/backend/internal/database"
	"github.com/pageza/platecoach/backend/internal/generation"
	"github.com/pageza/platecoach/backend/internal/jobs"
	"github.com/pageza/platecoach/backend/internal/llm"
	"github.com/pageza/platecoach/backend/internal/logger"
	"github.com/pageza/platecoach/backend/internal/metrics"
	"github.com/pageza/platecoach/backend/internal/repository"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment.String(),
		ServiceName: "platecoach-worker",
	}); err != nil {
		panic(err)
	}
	log := logger.GetLogger()
	defer func() { _ = log.Sync() }()

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	rdb, err := database.NewRedisClient(cfg, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	provider, err := llm.New(ctx, cfg.Generation)
	if err != nil {
		log.Fatal("failed to create generation provider", zap.Error(err))
	}

	orch := generation.NewOrchestrator(repository.NewPlanRepository(db), provider, audit.NewGormSink(db), cfg.Generation, log)
	runner := jobs.NewRedisRunner(rdb, cfg.Generation.MaxAttempts, cfg.Queue.Concurrency, jobs.WithLogger(log))
	runner.Register(generation.EventName, orch.Handler())

	// metrics only; the worker has no other HTTP surface
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	log.Info("worker started",
		zap.String("provider", cfg.Generation.Provider),
		zap.Int("concurrency", cfg.Queue.Concurrency),
	)
	if err := runner.Start(ctx); err != nil {
		log.Error("worker stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("worker stopped")
}
