package main

import (
	"context"
	"fmt"
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
	"github.com/pageza/platecoach/backend/internal/middleware"
	"github.com/pageza/platecoach/backend/internal/pdf"
	"github.com/pageza/platecoach/backend/internal/repository"
	"github.com/pageza/platecoach/backend/internal/server"
	"github.com/pageza/platecoach/backend/internal/service"
	"github.com/pageza/platecoach/backend/internal/status"
	"github.com/pageza/platecoach/backend/internal/storage"
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
		ServiceName: "platecoach-api",
	}); err != nil {
		panic(err)
	}
	log := logger.GetLogger()
	defer func() { _ = log.Sync() }()

	metrics.Register()

	db, err := database.Open(cfg, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.RunMigrations(db, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	plans := repository.NewPlanRepository(db)
	sink := audit.NewGormSink(db)

	deps := server.Deps{
		DB:   db,
		Auth: middleware.NewJWTValidator(cfg.JWTSecret),
	}

	// With Redis, generation runs in cmd/worker. Without it the API runs jobs
	// in-process, which loses queued work on restart.
	var (
		runner jobs.Runner
		inline *jobs.InlineRunner
	)
	rdb, err := database.NewRedisClient(cfg, log)
	switch {
	case err == nil:
		runner = jobs.NewRedisRunner(rdb, cfg.Generation.MaxAttempts, cfg.Queue.Concurrency, jobs.WithLogger(log))
		deps.SubmitLimit = middleware.NewSubmissionRateLimiter(rdb, cfg.SubmitRateLimit).RateLimitMiddleware()
		defer func() { _ = rdb.Close() }()
	case cfg.Environment.IsProduction():
		log.Fatal("redis is required in production", zap.Error(err))
	default:
		log.Warn("redis unavailable, running generation in-process", zap.Error(err))
		provider, perr := llm.New(ctx, cfg.Generation)
		if perr != nil {
			log.Fatal("failed to create generation provider", zap.Error(perr))
		}
		inline = jobs.NewInlineRunner(cfg.Generation.MaxAttempts, jobs.WithAsync(), jobs.WithLogger(log))
		inline.Register(generation.EventName, generation.NewOrchestrator(plans, provider, sink, cfg.Generation, log).Handler())
		runner = inline
	}

	s3cfg, err := config.NewS3Config(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("failed to configure PDF archive", zap.Error(err))
	}
	var archive service.Archiver
	if s3cfg != nil {
		archive = storage.NewPDFArchive(s3cfg)
	}

	renderer := pdf.NewRenderer(pdf.WithFontDir(cfg.FontDir), pdf.WithLogger(log))
	estimator := status.NewEstimator(plans, sink, cfg.Queue, log)
	deps.Plans = service.NewPlanService(db, runner, estimator, renderer, archive, sink)

	srv := server.New(cfg, deps, log)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			log.Fatal("server error", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}
	if inline != nil {
		inline.Wait()
	}
	log.Info("server stopped")
}
