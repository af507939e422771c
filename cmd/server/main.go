// Package main is the entrypoint for the crosspost API server and workers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kiranshivaraju/crosspost/internal/api"
	"github.com/kiranshivaraju/crosspost/internal/api/handler"
	mw "github.com/kiranshivaraju/crosspost/internal/api/middleware"
	"github.com/kiranshivaraju/crosspost/internal/api/response"
	"github.com/kiranshivaraju/crosspost/internal/cache"
	"github.com/kiranshivaraju/crosspost/internal/config"
	"github.com/kiranshivaraju/crosspost/internal/drive"
	"github.com/kiranshivaraju/crosspost/internal/publish"
	"github.com/kiranshivaraju/crosspost/internal/publish/facebook"
	"github.com/kiranshivaraju/crosspost/internal/publish/instagram"
	"github.com/kiranshivaraju/crosspost/internal/publish/youtube"
	"github.com/kiranshivaraju/crosspost/internal/store"
	"github.com/kiranshivaraju/crosspost/internal/transcode"
	"github.com/kiranshivaraju/crosspost/internal/worker"
	"github.com/kiranshivaraju/crosspost/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "workers", cfg.Worker.Count)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	cipher, err := store.NewTokenCipher(cfg.Secrets.CredentialKey)
	if err != nil {
		return fmt.Errorf("create token cipher: %w", err)
	}
	pgStore := store.NewPostgresStore(pool, cipher)

	driveClient := drive.NewHTTPClient(cfg.Drive)
	transcodeClient := transcode.NewHTTPClient(cfg.Transcode)

	publishers := []publish.Publisher{
		youtube.NewPublisher(cfg.YouTube),
		facebook.NewPublisher(cfg.Meta),
		instagram.NewPublisher(cfg.Meta, cfg.Instagram, transcodeClient),
	}
	refreshers := map[string]publish.TokenRefresher{
		models.ProviderGoogle: publish.NewGoogleRefresher(cfg.Google),
		models.ProviderMeta:   publish.NewMetaRefresher(cfg.Meta),
	}

	svc := publish.NewService(pgStore, redisCache, driveClient, publishers, refreshers)

	workers := worker.NewPool(pgStore, svc, cfg.Worker.Count, cfg.Worker.PollInterval)
	workers.Start()
	defer workers.Stop()

	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	router := api.NewRouter(api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),
		SubmitHandler: handler.NewSubmitHandler(svc),
		StatusHandler: handler.NewStatusHandler(pgStore, redisCache),
		ListHandler:   handler.NewListHandler(pgStore),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
