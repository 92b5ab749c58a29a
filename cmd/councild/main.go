package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/application"
	"github.com/llmcouncil/llmcouncil/backend/internal/infrastructure/config"
	"github.com/llmcouncil/llmcouncil/backend/internal/infrastructure/logger"
)

const (
	appName    = "councild"
	appVersion = "0.3.0"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("%s v%s\n", appName, appVersion)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      "info",
		Format:     "json",
		OutputPath: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting council server",
		zap.String("name", appName),
		zap.String("version", appVersion),
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start application", zap.Error(err))
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
}

// printUsage displays usage information
func printUsage() {
	fmt.Printf(`%s v%s

Usage:
  councild          Start the council HTTP server
  councild version  Show version
  councild help     Show this help

Environment:
  OPENROUTER_API_KEY / OPENAI_API_KEY   Upstream credentials
  STAGE1_MODEL_A..D, CHAIRMAN_MODEL     Model slots (see config.yaml)
`, appName, appVersion)
}
