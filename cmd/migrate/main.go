package main

import (
	"go.uber.org/zap"

	"s2s-tracker/internal/config"
	"s2s-tracker/internal/database"
	"s2s-tracker/internal/logger"
)

func main() {
	// Load environment variables
	config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(logger.Config{
		ServiceName: cfg.AppName + "-migrate",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	// Initialize Database
	database.Connect(cfg)

	// Run Migrations
	log.Info("Running database migrations...")
	database.Migrate()

	if err := database.Seed(database.DB); err != nil {
		log.Fatal("Failed to seed defaults", zap.Error(err))
	}
	log.Info("Migrations completed successfully!")
}
