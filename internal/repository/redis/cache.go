package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache is the "remote shared" cache backend, backed by Redis rather
// than a memcache client: the codebase already depends on go-redis/v9 for
// the store-adjacent concerns, and nothing else in the reference pack
// pulls in a memcache driver. Values are JSON-encoded since Redis strings
// are byte-only.
type Cache struct {
	client *goredis.Client
}

// NewCache wraps an existing Redis client as a read-through cache backend.
func NewCache(client *Client) *Cache {
	return &Cache{client: client.GetClient()}
}

func (c *Cache) Get(ctx context.Context, key string) (any, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
