package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"surely-client/internal/app"
	"surely-client/internal/config"
	"surely-client/internal/nav"
	"surely-client/internal/routes"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[MAIN] No .env file found, relying on system env vars")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()
	navigator := nav.NewMemory(routes.Home)

	a, err := app.New(cfg, navigator, logger)
	if err != nil {
		logger.Fatal("failed to build client core", zap.Error(err))
	}

	ctx := context.Background()
	a.Start(ctx)
	logger.Info("surely client core running",
		zap.String("api", cfg.APIBaseURL),
		zap.Bool("authenticated", a.Tokens.Authenticated(ctx)),
	)

	// Keep the background refresh loop alive until signalled.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := a.Close(); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
