package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"s2s-tracker/internal/app"
	"s2s-tracker/internal/config"
	"s2s-tracker/internal/database"
	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/metrics"
	"s2s-tracker/internal/worker"
)

func main() {
	// Load env
	config.LoadEnv(".env", "../../.env")

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(logger.Config{
		ServiceName: cfg.AppName + "-worker",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	// Connect DB
	database.Connect(cfg)
	db := database.DB

	redisClient := redis.NewClient(app.RedisOptions(cfg))
	defer redisClient.Close()

	// Redeliveries never enqueue further tasks, so the worker's delivery service runs without a queue.
	svc := app.NewServices(cfg, db, redisClient, nil, metrics.New(prometheus.DefaultRegisterer))

	log.Info("Starting Asynq Worker...", zap.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.StartWorker(app.AsynqRedisOpt(cfg), cfg.WorkerConcurrency, svc.Delivery); err != nil {
		log.Fatal("Worker stopped", zap.Error(err))
	}
}

