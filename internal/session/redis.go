package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores a session as a hash keyed by the session id. Every write
// refreshes the TTL.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.key, key, value)
		if r.ttl > 0 {
			p.Expire(ctx, r.key, r.ttl)
		}
		return nil
	})
	return err
}

// Remove implements Store.
func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.client.HDel(ctx, r.key, key).Err()
}

// RedisProvider hands out Redis-backed stores.
type RedisProvider struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisProvider creates a provider storing sessions under prefix.
func NewRedisProvider(client *redis.Client, prefix string, ttl time.Duration) *RedisProvider {
	if prefix == "" {
		prefix = "checkin:session:"
	}
	return &RedisProvider{client: client, prefix: prefix, ttl: ttl}
}

// For implements Provider.
func (p *RedisProvider) For(sessionID string) Store {
	return &Redis{client: p.client, key: p.prefix + sessionID, ttl: p.ttl}
}
