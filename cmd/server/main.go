// Package main provides the entry point for the question bank server
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/toniwang/geyago/internal/config"
	"github.com/toniwang/geyago/internal/providers"
	"github.com/toniwang/geyago/internal/qa"
	"github.com/toniwang/geyago/internal/server"
	"github.com/toniwang/geyago/internal/storage"
	"github.com/toniwang/geyago/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "path to config.json (default: search ./ and ./configs)")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfgManager := config.NewManager(*configPath)
	if err := cfgManager.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfgManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := cfgManager.Get()

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	db, err := storage.NewDatabase(&cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open question bank database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		logger.WithError(err).Fatal("Failed to migrate question bank schema")
	}

	var cache *storage.AnswerCache
	if cfg.Redis.Enabled {
		cache, err = storage.NewAnswerCache(&cfg.Redis, logger)
		if err != nil {
			// The service works without the hot cache.
			logger.WithError(err).Warn("Answer cache unavailable, continuing without it")
			cache = nil
		}
	}
	defer cache.Close()

	registry := providers.NewRegistry(cfgManager, logger)
	if err := registry.Initialize(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize providers")
	}

	cfgManager.Watch(func(updated *config.Config) {
		logger.Info("Configuration file changed, reinitializing providers")
		if err := registry.Reinitialize(); err != nil {
			logger.WithError(err).Error("Failed to reinitialize providers")
		}
	})

	dispatcher := providers.NewDispatcher(cfgManager, nil, logger)
	aiManager := providers.NewManager(registry, dispatcher, logger)

	repo := storage.NewQuestionRepository(db, logger)
	resolver := qa.NewService(repo, cache, aiManager, logger)

	srv := server.New(cfgManager, resolver, registry, aiManager, db, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
