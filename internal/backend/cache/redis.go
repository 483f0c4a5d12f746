package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares rendered images between server instances
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to address and verifies the connection with a PING
func NewRedisCache(address string, ttl time.Duration) (*RedisCache, error) {
	if address == "" {
		return nil, errors.New("redis cache requires an address")
	}
	client := redis.NewClient(&redis.Options{Addr: address})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", address, err)
	}
	slog.Info("Cache: connected to redis", "address", address, "ttl", ttl)
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
