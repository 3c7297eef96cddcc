package cache

import (
	"context"
	"errors"
	"time"

	pkgcache "TradeVeil/pkg/cache"
)

// TTLCache adapts the in-process cache to BytesCache. Used when Redis is
// not configured.
type TTLCache struct {
	c *pkgcache.MemoryCache
}

func NewTTLCache() *TTLCache {
	return &TTLCache{c: pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(512))}
}

func (t *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	var s string
	err := t.c.Get(context.Background(), key, &s)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(s), true, nil
}

func (t *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	return t.c.Set(context.Background(), key, string(value), ttl)
}

func (t *TTLCache) Close() error { return t.c.Close() }
