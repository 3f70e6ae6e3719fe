package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"cvstudio/internal/config"
	"cvstudio/internal/database"
	"cvstudio/internal/gateway"
	"cvstudio/internal/metrics"
	"cvstudio/internal/renderfarm"
	"cvstudio/internal/storage"
	"cvstudio/internal/tasks"
	"cvstudio/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	farm := renderfarm.NewPool(renderfarm.Config{
		Size:       cfg.Render.PoolSize,
		JobTimeout: cfg.Render.JobTimeout,
		BrowserBin: cfg.Render.BrowserBin,
	}, logger)

	gw := gateway.New(db)
	thumbnailHandler := worker.NewThumbnailTaskHandler(db, gw, farm, storageClient, redisClient, logger)

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}, asynq.Config{
		Concurrency: cfg.Render.PoolSize,
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.HandleFunc(tasks.TypeCVThumbnail, thumbnailHandler.ProcessCVTask)
	mux.HandleFunc(tasks.TypeTemplateThumbnail, thumbnailHandler.ProcessTemplateTask)

	logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	farm.Shutdown(shutdownCtx)
}
