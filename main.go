package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"s2s-tracker/internal/app"
	"s2s-tracker/internal/config"
	"s2s-tracker/internal/database"
	grpcServer "s2s-tracker/internal/grpc"
	"s2s-tracker/internal/handlers"
	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/metrics"
	"s2s-tracker/internal/worker"
)

func main() {
	// Load environment variables
	config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(logger.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	// Initialize Database
	database.Connect(cfg)
	database.Migrate()
	if err := database.Seed(database.DB); err != nil {
		log.Fatal("Failed to seed database", zap.Error(err))
	}
	db := database.DB

	// Redis for the geo cache and the redelivery queue
	redisClient := redis.NewClient(app.RedisOptions(cfg))
	defer redisClient.Close()

	asynqClient := asynq.NewClient(app.AsynqRedisOpt(cfg))
	defer asynqClient.Close()
	asynqInspector := asynq.NewInspector(app.AsynqRedisOpt(cfg))
	defer asynqInspector.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	svc := app.NewServices(cfg, db, redisClient, worker.NewEnqueuer(asynqClient, asynqInspector), m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start gRPC health server
	health := grpcServer.NewServer(db)
	go func() {
		if err := grpcServer.StartGRPCServer(ctx, cfg.GRPCPort, health); err != nil {
			log.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	// Start Cron Schedulers
	scheduler, err := svc.StartScheduler(cfg)
	if err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(svc.Handler(), prometheus.DefaultGatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	<-scheduler.Stop().Done()
	health.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error", zap.Error(err))
	}
}
