package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/victorxys/dify-0.15.3/internal/config"
	"github.com/victorxys/dify-0.15.3/internal/db"
	"github.com/victorxys/dify-0.15.3/internal/logger"
	"github.com/victorxys/dify-0.15.3/internal/redis"
)

// Infra holds the optional backing services. A nil field means the
// service is not configured.
type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	infra := &Infra{}

	if cfg.DatabaseDSN != "" {
		sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}

		if err := db.RunLinkMigration(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("migrate account links: %w", err)
		}

		logger.Info("database ready", nil)
		infra.DB = &db.DB{DB: sqlDB}
	} else {
		logger.Info("no DATABASE_DSN, account links are not recorded", nil)
	}

	if cfg.RedisAddr != "" {
		redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}

		logger.Info("redis ready", map[string]any{"addr": cfg.RedisAddr})
		infra.Redis = redisClient
	} else {
		logger.Warn("no REDIS_ADDR, client storage is kept in process memory", nil)
	}

	return infra, nil
}

func (i *Infra) Close() error {
	var errs []error
	if i.DB != nil {
		errs = append(errs, i.DB.Close())
	}
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	return errors.Join(errs...)
}
