// Package redis owns the shared redis connection. Redis carries the
// engine's coordination state only: the sweep leader lock, the lifecycle
// event channel and the webhook queue. No process or pool data lives here.
package redis

import (
	"context"
	"fmt"

	"procgrid/pkg/config"

	"github.com/go-redis/redis/v8"
)

// RedisClient wraps the go-redis client so callers share one connection
// pool across the lock, publisher and subscriber.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects and pings; a redis that cannot be reached at
// startup is a configuration error, not something to degrade around.
func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// GetClient retrieves the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
