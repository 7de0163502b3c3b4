package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultJitter = 5 * time.Minute

type RedisCache struct {
	client  *redis.Client
	prefix  string
	baseTTL time.Duration
	jitter  time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache namespaces keys under prefix. A zero baseTTL keeps entries forever.
func NewRedisCache(client *redis.Client, prefix string, baseTTL time.Duration) *RedisCache {
	jitter := defaultJitter
	if baseTTL == 0 || baseTTL < 2*jitter {
		jitter = baseTTL / 10
	}
	return &RedisCache{
		client:  client,
		prefix:  prefix,
		baseTTL: baseTTL,
		jitter:  jitter,
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) GetJSON(ctx context.Context, key string, out any) error {
	data, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s failed: %w", key, err)
	}
	return nil
}

func (r *RedisCache) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}
	return r.Set(ctx, key, data)
}

// ttl spreads expiries so entries written together do not expire together.
func (r *RedisCache) ttl() time.Duration {
	if r.baseTTL <= 0 {
		return 0
	}
	if r.jitter <= 0 {
		return r.baseTTL
	}
	return r.baseTTL + time.Duration(rand.Int63n(int64(r.jitter)))
}

func (r *RedisCache) key(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}
