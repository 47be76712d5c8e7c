package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dealeriq/priorityd/internal/config"
	"github.com/dealeriq/priorityd/internal/jobs"
	"github.com/dealeriq/priorityd/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore, err := jobs.BuildStoreFromDSN(cfg.JobStoreDSN, cfg.JobStoreServiceKey)
	if err != nil {
		logger.Fatal("failed to initialize job store", zap.Error(err))
	}
	defer func() { _ = jobStore.Close() }()

	optimizer, err := jobs.NewHTTPOptimizerClient(jobs.OptimizerClientOptions{URL: cfg.OptimizerURL})
	if err != nil {
		logger.Fatal("failed to initialize optimizer client", zap.Error(err))
	}

	bridge := stream.NewRedisBridge(stream.RedisBridgeOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channel:  cfg.UpdatesChannel,
		Logger:   logger,
	})
	defer func() { _ = bridge.Close() }()

	worker := jobs.NewWorker(jobs.WorkerOptions{
		Store:        jobStore,
		Optimizer:    optimizer,
		Publisher:    bridge,
		Logger:       logger,
		PollInterval: cfg.WorkerPollInterval,
		BatchSize:    cfg.WorkerBatchSize,
		MaxAttempts:  cfg.WorkerMaxAttempts,
	})

	logger.Info("priority worker started",
		zap.Duration("poll_interval", cfg.WorkerPollInterval),
		zap.Int("batch_size", cfg.WorkerBatchSize),
	)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker stopped", zap.Error(err))
	}
	logger.Info("priority worker stopped")
}
