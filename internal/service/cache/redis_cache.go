package cache

import (
	"context"
	"errors"
	"time"

	pkgcache "TradeVeil/pkg/cache"
)

// RedisCache adapts the layered (memory + redis) cache to BytesCache for the
// export API. Values are stored as raw strings so both layers round-trip
// them unchanged.
type RedisCache struct {
	c *pkgcache.LayeredCache
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Host),
		pkgcache.WithRedisPort(cfg.Port),
		pkgcache.WithRedisPassword(cfg.Password),
		pkgcache.WithRedisDB(cfg.DB),
		pkgcache.WithRedisPrefix("tradeveil:export"),
	)
	if err != nil {
		return nil, err
	}
	return &RedisCache{c: pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(512))}, nil
}

func (r *RedisCache) GetBytes(key string) ([]byte, bool, error) {
	var s string
	err := r.c.Get(context.Background(), key, &s)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(s), true, nil
}

func (r *RedisCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	return r.c.Set(context.Background(), key, string(value), ttl)
}

func (r *RedisCache) Close() error { return r.c.Close() }
