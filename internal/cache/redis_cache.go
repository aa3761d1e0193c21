package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"duckbunn/backend/internal/domain"
)

type RedisOrderStatusCache struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr, password string, db int) (*RedisOrderStatusCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisOrderStatusCache{client: client}, nil
}

func (c *RedisOrderStatusCache) Close() error {
	return c.client.Close()
}

func statusKey(code string) string {
	return "order-status:" + code
}

func (c *RedisOrderStatusCache) Get(ctx context.Context, code string) (*domain.OrderStatus, bool, error) {
	raw, err := c.client.Get(ctx, statusKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var status domain.OrderStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		// Stale or corrupt entry: treat as a miss rather than failing the read.
		_ = c.client.Del(ctx, statusKey(code)).Err()
		return nil, false, nil
	}
	return &status, true, nil
}

func (c *RedisOrderStatusCache) Set(ctx context.Context, code string, status domain.OrderStatus, ttl time.Duration) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, statusKey(code), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RedisOrderStatusCache) Invalidate(ctx context.Context, code string) error {
	if err := c.client.Del(ctx, statusKey(code)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
