package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/api"
	"github.com/HanTheDev/onboard-assistant/internal/app"
	"github.com/HanTheDev/onboard-assistant/internal/config"
	"github.com/HanTheDev/onboard-assistant/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database, cache and pipeline
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize assistant", zap.Error(err))
	}

	handler := api.NewHandler(a.Service, logger,
		api.WithRateLimit(a.Limiter, cfg.QueryRateLimitPerHour),
		api.WithMetricsHandler(a.Metrics.Handler()),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", zap.Duration("grace_period", cfg.ShutdownGracePeriod))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	// Detached cache writes get whatever is left of the grace period.
	if err := a.Close(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	logger.Info("server stopped")
}
