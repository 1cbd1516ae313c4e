package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"storage-sync-worker/internal/di"
	"storage-sync-worker/internal/shared/logger"
	"storage-sync-worker/internal/shared/utils"
	"storage-sync-worker/internal/sync/config"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("🚀 Storage Sync Worker - Starting...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	appLogger := logger.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	runID := uuid.NewString()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = utils.WithRunID(ctx, runID)
	appLogger = appLogger.WithContext(ctx)

	appLogger.WithFields(map[string]interface{}{
		"source_database": cfg.Storage.SourceDatabase,
		"target_database": cfg.Storage.TargetDatabase,
		"collections":     cfg.Storage.CollectionNames,
	}).Info("Configuration loaded")

	container := di.NewContainer(cfg, appLogger)
	defer func() {
		if err := container.Close(); err != nil {
			appLogger.WithError(err).Error("Failed to close container")
		}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timing.ConnectTimeout()+cfg.Timing.ServerSelectionTimeout())
	err = container.Connect(connectCtx)
	cancel()
	if err != nil {
		appLogger.WithError(err).Error("Failed to connect to storage")
		exit(container, 1)
	}

	if err := container.InitializeSync(runID, appLogger); err != nil {
		appLogger.WithError(err).Error("Failed to initialize sync module")
		exit(container, 1)
	}
	module := container.GetSyncModule()

	appLogger.Info("🌟 Sync worker running")
	if err := module.Serve(ctx); err != nil {
		appLogger.WithError(err).Error("Sync worker stopped with error")
		exit(container, 1)
	}

	fmt.Println("✅ Storage Sync Worker stopped gracefully.")
}

// exit releases the container before terminating, since deferred calls do not run on os.Exit.
func exit(container *di.Container, code int) {
	_ = container.Close()
	os.Exit(code)
}
