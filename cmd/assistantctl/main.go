// Command assistantctl runs the assistant's operations from a terminal
// against the same backends the server uses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/api"
	"github.com/HanTheDev/onboard-assistant/internal/app"
	"github.com/HanTheDev/onboard-assistant/internal/config"
	"github.com/HanTheDev/onboard-assistant/internal/db"
	"github.com/HanTheDev/onboard-assistant/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(liveBackend{}).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// liveBackend builds the real service graph on demand so that commands
// which fail flag parsing never touch a database.
type liveBackend struct{}

func (liveBackend) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (b liveBackend) Open(ctx context.Context) (api.Assistant, func(context.Context) error, error) {
	cfg, logger, err := b.load()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func(ctx context.Context) error {
		defer logger.Sync()
		return a.Close(ctx)
	}
	return a.Service, closeFn, nil
}

func (b liveBackend) Migrate(ctx context.Context) error {
	cfg, logger, err := b.load()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if err := db.Migrate(ctx, cfg.DatabaseURL, cfg.EmbeddingDimensions); err != nil {
		return err
	}
	logger.Info("schema applied", zap.Int("dimensions", cfg.EmbeddingDimensions))
	return nil
}
