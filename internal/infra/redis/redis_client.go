// Package redis wraps the one client the platform shares between the plan
// catalog cache and the reminder counters.
package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"course-platform/internal/config"
)

// Client is the narrow command surface the rest of the code relies on:
// Get/Set/Del for the plan cache, Incr/Expire for reminder dedup counters.
// Get returns redis.Nil for a missing key.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}

var _ Client = (*client)(nil)

type client struct {
	rdb *redis.Client
}

// NewClient dials and pings so a bad address fails startup rather than the
// first cache read.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &client{rdb: rdb}, nil
}

func (c *client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *client) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

func (c *client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *client) Close() error { return c.rdb.Close() }
