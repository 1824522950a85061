package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

const cacheKeyPrefix = "bridge:token_map:"

// RedisCache decorates a Lookup with a bounded TTL cache, replacing the old
// process-lifetime in-memory map. Entries expire on their own; Invalidate
// drops one eagerly after an out-of-band remap.
type RedisCache struct {
	source Lookup
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(source Lookup, redisURL string, ttl time.Duration) (*RedisCache, error) {
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
	return &RedisCache{source: source, client: client, ttl: ttl}, nil
}

func (c *RedisCache) Resolve(ctx context.Context, canonicalID string) (*model.DeviceLink, error) {
	key := cacheKeyPrefix + canonicalID

	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var link model.DeviceLink
		if err := json.Unmarshal(data, &link); err == nil {
			return &link, nil
		}
		// Unreadable cache entry: fall through to the source.
		c.client.Del(ctx, key)
	}

	link, err := c.source.Resolve(ctx, canonicalID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(link); err == nil {
		// Cache population is best-effort.
		c.client.Set(ctx, key, data, c.ttl)
	}
	return link, nil
}

// Invalidate drops the cached entry for one canonical id.
func (c *RedisCache) Invalidate(ctx context.Context, canonicalID string) error {
	if err := c.client.Del(ctx, cacheKeyPrefix+canonicalID).Err(); err != nil {
		return fmt.Errorf("invalidate token cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }

// InvalidateEntry drops the cached mapping for one canonical id without
// standing up a full read-through cache. Remap tooling calls it after
// rewriting the identity map so a running bridge stops forwarding with the
// superseded token.
func InvalidateEntry(ctx context.Context, redisURL, canonicalID string) error {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	defer client.Close()

	if err := client.Del(ctx, cacheKeyPrefix+canonicalID).Err(); err != nil {
		return fmt.Errorf("invalidate token cache: %w", err)
	}
	return nil
}
