package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/app"
	"github.com/boddenberg/burger-place-bfa-go/internal/config"
	"github.com/boddenberg/burger-place-bfa-go/internal/handler"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/cache"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "invalid .env:", err)
		os.Exit(1)
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFile)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.String("storage_prefix", cfg.StoragePrefix),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("admin_idle_timeout", cfg.AdminIdleTimeout),
		zap.Int("activity_limit", cfg.ActivityLimit),
		zap.Bool("allow_status_rollback", cfg.AllowStatusRollback),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "burger-place-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Core ---
	core, err := app.New(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Fatal("failed to build core", zap.Error(err))
	}
	defer core.Close(context.Background())

	if loaded, err := core.Store.Load(ctx); err != nil {
		logger.Error("stored state unreadable, writes are refused until it loads", zap.Error(err))
	} else if !loaded {
		logger.Info("no stored state found")
	}
	if cfg.SeedDemo {
		seeded, err := core.Store.SeedIfEmpty(ctx)
		if err != nil {
			logger.Error("seed failed", zap.Error(err))
		} else if seeded {
			logger.Info("demo data seeded")
		}
	}

	// --- Idempotency cache ---
	replays := cache.New[handler.CheckoutReplay](ctx, cfg.IdempotencyTTL)

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Store:       core.Store,
		Orders:      core.Orders,
		Sessions:    core.Sessions,
		Cart:        core.Cart,
		Inbox:       core.Inbox,
		Idempotency: replays,
		Substrate:   core.Substrate,
		CORSOrigins: cfg.CORSOrigins,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
