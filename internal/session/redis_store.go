package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage is the production Storage backed by Redis. Items expire
// with the same max-age as the session cookie.
type RedisStorage struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStorage creates a Redis-backed storage surface.
func NewRedisStorage(client redis.Cmdable) *RedisStorage {
	return &RedisStorage{
		client: client,
		prefix: "client:",
	}
}

func (r *RedisStorage) key(clientID, key string) string {
	return r.prefix + clientID + ":" + key
}

func (r *RedisStorage) Get(ctx context.Context, clientID, key string) (string, error) {
	val, err := r.client.Get(ctx, r.key(clientID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session: redis get: %w", err)
	}
	return val, nil
}

func (r *RedisStorage) Set(ctx context.Context, clientID, key, value string, ttl time.Duration) error {
	if clientID == "" || key == "" {
		return fmt.Errorf("session: missing client id or key")
	}
	if ttl <= 0 {
		return fmt.Errorf("session: ttl must be positive")
	}
	return r.client.Set(ctx, r.key(clientID, key), value, ttl).Err()
}

func (r *RedisStorage) Delete(ctx context.Context, clientID, key string) error {
	return r.client.Del(ctx, r.key(clientID, key)).Err()
}
