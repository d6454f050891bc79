package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"voice-chat-service/internal/config"
	"voice-chat-service/internal/database"
	"voice-chat-service/internal/router"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting voice chat service",
		zap.Int("port", cfg.Server.Port),
		zap.String("basePath", cfg.Server.BasePath),
		zap.String("env", cfg.Server.Env))

	// Connect to PostgreSQL; a failed first attempt retries in the background
	// so the pod survives a database that comes up late
	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Warn("Failed to connect to PostgreSQL on startup, will retry in background",
			zap.Error(err))
		database.InitPostgresAsync(cfg, 5*time.Second)
		db = database.GetDB()
	} else {
		logger.Info("PostgreSQL connected")
	}

	redisClient := database.InitRedis(cfg.Redis.URL)
	if redisClient != nil {
		logger.Info("Redis connected")
	} else {
		logger.Warn("Redis unavailable, message fan-out degrades to in-process only")
	}

	r, presenceService := router.Setup(cfg, db, redisClient, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	presenceService.StartSweeper(ctx)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Voice chat service started", zap.String("address", addr))

	if err := r.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Server.Env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
