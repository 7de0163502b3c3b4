package client

import (
	"context"
	"fmt"
	"time"

	"qtc-marketplace/internal/config"

	"github.com/redis/go-redis/v9"
)

// InitRedisClient connects using REDIS_URL when set, otherwise REDIS_ADDR.
func InitRedisClient(ctx context.Context, cfg *config.Redis) (*redis.Client, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
