package cache

import (
	"context"
	"errors"
)

// Cache stores opaque payloads by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")
