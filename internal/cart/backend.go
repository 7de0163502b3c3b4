package cart

import (
	"context"
	"errors"
	"sync"

	"qtc-marketplace/internal/cache"
)

type MemoryBackend struct {
	mu    sync.RWMutex
	carts map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{carts: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(_ context.Context, cartID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.carts[cartID]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), payload...), nil
}

func (m *MemoryBackend) Save(_ context.Context, cartID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[cartID] = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, cartID)
	return nil
}

type cacheBackend struct {
	cache cache.Cache
}

// NewCacheBackend stores carts in a cache such as cache.RedisCache.
func NewCacheBackend(c cache.Cache) Backend {
	return &cacheBackend{cache: c}
}

func (b *cacheBackend) Load(ctx context.Context, cartID string) ([]byte, error) {
	payload, err := b.cache.Get(ctx, cartID)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	return payload, err
}

func (b *cacheBackend) Save(ctx context.Context, cartID string, payload []byte) error {
	return b.cache.Set(ctx, cartID, payload)
}

func (b *cacheBackend) Delete(ctx context.Context, cartID string) error {
	return b.cache.Delete(ctx, cartID)
}
