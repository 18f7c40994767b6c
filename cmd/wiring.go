package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/ecovision/internal/classification"
	"github.com/example/ecovision/internal/config"
	"github.com/example/ecovision/internal/geminiclient"
	"github.com/example/ecovision/internal/imageprocessor"
	"github.com/example/ecovision/internal/offline"
	"github.com/example/ecovision/internal/repository"
	"github.com/example/ecovision/internal/usecase"
)

// newDispatcher builds the classification pipeline. offlineOnly skips the
// remote model entirely.
func newDispatcher(cfg *config.Config, logger *zap.Logger, offlineOnly bool) *usecase.Dispatcher {
	var remote classification.RemoteClient
	if !offlineOnly {
		remote = geminiclient.New(geminiclient.Config{
			APIKey:  cfg.Gemini.APIKey,
			BaseURL: cfg.Gemini.BaseURL,
			Model:   cfg.Gemini.Model,
			Timeout: cfg.Gemini.Timeout,
		}, logger)
		if cfg.Gemini.APIKey == "" {
			logger.Warn("no Gemini API key configured, every request will use offline classification")
		}
	}

	normalizer := imageprocessor.NewNormalizer(imageprocessor.DefaultOptions())
	fallback := offline.NewClassifier(nil, logger)
	return usecase.NewDispatcher(normalizer, remote, fallback, logger)
}

// openHistory returns a postgres-backed store when a DSN is configured and
// an in-memory one otherwise. The returned func releases the connection.
func openHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (usecase.HistoryRepository, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Info("no database configured, keeping history in memory")
		return repository.NewMemoryStore(0), func() {}, nil
	}

	db, err := initDatabase(ctx, cfg.Database.DSN, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("access db handle: %w", err)
	}

	store := repository.NewGormStore(db, logger)
	if err := store.AutoMigrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("auto migrate: %w", err)
	}
	return store, func() { _ = sqlDB.Close() }, nil
}

func initDatabase(ctx context.Context, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		logger.Error("database ping failed", zap.Error(err))
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// openCache connects to redis when an address is configured. A nil cache
// disables result caching.
func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (usecase.Cache, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Error("redis connection failed", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return usecase.NewRedisCache(client), func() { _ = client.Close() }, nil
}
