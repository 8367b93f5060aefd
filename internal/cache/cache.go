// Package cache wraps the Redis key/value operations consumed by the rest of
// the application: TTL'd get/set for read-path caching, wildcard purge for
// write invalidation, atomic counters for the rate limiter and SetNX for the
// per-user export lock. Consumers depend on the Store interface so tests can
// substitute an in-memory fake.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the key/value contract used by services and middleware.
type Store interface {
	// Get returns the value at key, or ErrMiss when absent.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value at key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Keys returns all keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
	// Incr atomically increments the integer at key and returns the result.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining lifetime of key.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// SetNX stores value only if key is absent; reports whether it was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = redis.Nil

// Redis implements Store on top of a go-redis client.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an already-connected client. The caller owns the client's
// lifecycle and closes it at shutdown.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	return r.client.Keys(ctx, pattern).Result()
}

func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}
