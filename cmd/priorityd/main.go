package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dealeriq/priorityd/internal/cache"
	"github.com/dealeriq/priorityd/internal/config"
	"github.com/dealeriq/priorityd/internal/httpapi"
	"github.com/dealeriq/priorityd/internal/jobs"
	"github.com/dealeriq/priorityd/internal/places"
	"github.com/dealeriq/priorityd/internal/secrets"
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

	secretSource, err := buildSecretSource(cfg, logger)
	if err != nil {
		logger.Fatal("failed to load webhook secret", zap.Error(err))
	}
	if cfg.WebhookSecretFile != "" {
		go func() {
			if err := secretSource.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("secret watcher stopped", zap.Error(err))
			}
		}()
	}

	var resolver *places.Resolver
	if cfg.MapsAPIKey != "" {
		provider, err := places.NewHTTPProvider(places.HTTPProviderOptions{APIKey: cfg.MapsAPIKey})
		if err != nil {
			logger.Fatal("failed to initialize lookup provider", zap.Error(err))
		}
		var kv cache.Store = cache.NewMemoryStore()
		if cfg.RedisAddr != "" {
			kv = cache.NewRedisStore(cache.RedisOptions{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
		}
		defer func() { _ = kv.Close() }()
		resolver = places.NewResolver(places.ResolverOptions{
			Provider:   provider,
			Cache:      kv,
			Logger:     logger,
			RateWindow: cfg.ResolveWindow,
		})
	}

	bridge := stream.NewRedisBridge(stream.RedisBridgeOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channel:  cfg.UpdatesChannel,
		Logger:   logger,
	})
	defer func() { _ = bridge.Close() }()

	server := httpapi.NewServer(jobStore, resolver, bridge, httpapi.ServerConfig{
		WebhookSecret:     secretSource.Get,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		AppVersion:        cfg.AppVersion,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}, logger)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: server.Router()}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("priorityd listening", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown error", zap.Error(err))
		}
	case err := <-serverErr:
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildSecretSource(cfg config.Config, logger *zap.Logger) (*secrets.Source, error) {
	if cfg.WebhookSecretFile != "" {
		return secrets.NewFileSource(cfg.WebhookSecretFile, logger)
	}
	return secrets.NewStaticSource(cfg.WebhookSecret), nil
}
