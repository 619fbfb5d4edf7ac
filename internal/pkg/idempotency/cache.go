// Package idempotency keeps a short-lived record of webhook events already
// handled so replays can be acknowledged without touching the datastore.
// It is an optimization only; the ledger's unique write is what prevents
// double application.
package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a Redis-backed seen set. A nil client disables it.
type Cache struct {
	client *redis.Client
	prefix string
}

func NewCache(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Seen reports whether key was marked and has not expired.
func (c *Cache) Seen(ctx context.Context, key string) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	n, err := c.client.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records key for ttl.
func (c *Cache) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, c.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Err()
}
