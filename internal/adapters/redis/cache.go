// Package redis provides a go-redis backed cache for deployments that run
// Redis instead of Valkey.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/samirrijal/meetpoint/internal/pkg/metrics"
)

// Cache implements ports.CacheService. A missing key is reported as (nil, nil).
type Cache struct {
	rdb *goredis.Client
}

// New connects using a redis:// URL, or a bare host:port address.
func New(addr string) (*Cache, error) {
	opt, err := goredis.ParseURL(addr)
	if err != nil {
		opt = &goredis.Options{Addr: addr}
	}
	return &Cache{rdb: goredis.NewClient(opt)}, nil
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		metrics.CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

// Set stores a value with a TTL in seconds.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return c.rdb.Set(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Err()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// Ping checks connectivity for readiness probes.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (c *Cache) Close() {
	_ = c.rdb.Close()
}
