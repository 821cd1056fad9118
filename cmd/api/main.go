package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"labportal/internal/engine"
	"labportal/internal/httpapi"
	"labportal/internal/notify"
	"labportal/internal/store"
	"labportal/pkg/config"
	"labportal/pkg/db"
	"labportal/pkg/logging"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store open", zap.Error(err))
	}
	defer closeStore()

	hub := notify.NewHub(logger, cfg.CORSAllowedOrigins)
	dispatchers := notify.Multi{notify.LogDispatcher{Logger: logger}, hub}
	var webhook *notify.Async
	if cfg.Notify.WebhookURL != "" {
		webhook = notify.NewAsync(
			notify.WebhookDispatcher{URL: cfg.Notify.WebhookURL, Secret: cfg.Notify.WebhookSecret},
			logger, 256, 5*time.Second,
		)
		dispatchers = append(dispatchers, webhook)
	}

	router := httpapi.NewRouter(httpapi.Dependencies{
		Cfg:    cfg,
		Engine: engine.New(st, dispatchers, logger),
		Store:  st,
		Hub:    hub,
		Logger: logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http serve", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if webhook != nil {
		if err := webhook.Close(shutdownCtx); err != nil {
			logger.Warn("webhook queue not drained", zap.Error(err))
		}
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		if cfg.IsProd() {
			return nil, nil, fmt.Errorf("memory store is not allowed in prod")
		}
		m := store.NewMemory()
		if cfg.SeedPath != "" {
			f, err := store.LoadFixture(cfg.SeedPath)
			if err != nil {
				return nil, nil, fmt.Errorf("load seed: %w", err)
			}
			m.Seed(f)
		}
		return m, func() {}, nil

	case "postgres":
		pool, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if cfg.MigrationsPath != "" {
			version, err := db.Migrate(cfg.MigrationsPath, cfg)
			if err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema ready", zap.Uint("version", version))
		}
		return store.NewPostgres(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
