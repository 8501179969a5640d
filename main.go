package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vendaro/vendaro/pkg/config"
	"github.com/vendaro/vendaro/pkg/utils"
)

func main() {
	// Optional .env for local development; ignored when absent.
	_ = godotenv.Load()

	utils.InitLogger()
	logger := utils.GetLogger()

	cfg, cfgPath, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Info("Config loaded", "path", cfgPath)

	if cfg.AuthSecret() == "" {
		logger.Error("No auth secret configured; set auth.secret in the config file or VENDARO_AUTH_SECRET")
		os.Exit(1)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
