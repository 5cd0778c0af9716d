package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	clts "walletwatch/clients"
	"walletwatch/config"
	"walletwatch/internal/app"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Optional .env for local runs
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", zap.Error(err))
	}

	// Load config from environment variables
	cfg := config.Load()
	if err := cfg.Validate().Err(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	logger.Info("starting walletwatch",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("mode", cfg.Watcher.Mode),
		zap.Int("wallets", len(cfg.Watcher.Wallets)),
	)

	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, cfg)
	defer clients.Close()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runner := app.NewRunner(clients, cfg)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}
