package downstream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idCacheKeyPrefix = "bridge:device_id:"

// IDCache decorates a platform view with a redis cache over device name to
// device id resolution. Ids are stable on the platform, so positive lookups
// are cached for the configured TTL; misses and telemetry reads always go
// through.
type IDCache struct {
	inner  Platform
	client *redis.Client
	ttl    time.Duration
}

// Platform is the subset of Client the reconciliation side consumes.
type Platform interface {
	LookupDeviceID(ctx context.Context, name string) (string, error)
	LastTelemetry(ctx context.Context, deviceID string) (*time.Time, error)
}

func NewIDCache(inner Platform, redisURL string, ttl time.Duration) (*IDCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &IDCache{inner: inner, client: client, ttl: ttl}, nil
}

func (c *IDCache) LookupDeviceID(ctx context.Context, name string) (string, error) {
	key := idCacheKeyPrefix + name

	if id, err := c.client.Get(ctx, key).Result(); err == nil && id != "" {
		return id, nil
	}

	id, err := c.inner.LookupDeviceID(ctx, name)
	if err != nil {
		return "", err
	}
	if id != "" {
		// Cache population is best-effort.
		c.client.Set(ctx, key, id, c.ttl)
	}
	return id, nil
}

func (c *IDCache) LastTelemetry(ctx context.Context, deviceID string) (*time.Time, error) {
	return c.inner.LastTelemetry(ctx, deviceID)
}

func (c *IDCache) Close() error { return c.client.Close() }
