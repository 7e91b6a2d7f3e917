package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keycloak-bridge/internal/config"
	"keycloak-bridge/internal/db"
	"keycloak-bridge/internal/logger"
	"keycloak-bridge/internal/redis"

	_ "github.com/lib/pq"
)

type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

func (i *Infra) Close() error {
	var errs []error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN is required")
	}

	sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := db.RunMigration(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("database ready", nil)

	redisClient, err := redis.New(ctx, redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	logger.Info("redis ready", map[string]any{
		"addr": cfg.RedisAddr,
	})

	return &Infra{
		DB:    db.New(sqlDB),
		Redis: redisClient,
	}, nil
}
