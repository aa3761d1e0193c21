// Package cache provides a short-lived read cache for order status lookups,
// the single hottest endpoint during payment polling.
package cache

import (
	"context"
	"time"

	"duckbunn/backend/internal/domain"
)

type OrderStatusCache interface {
	Get(ctx context.Context, code string) (*domain.OrderStatus, bool, error)
	Set(ctx context.Context, code string, status domain.OrderStatus, ttl time.Duration) error
	Invalidate(ctx context.Context, code string) error
}

// NoopOrderStatusCache is used when no Redis address is configured; every
// lookup falls through to the store.
type NoopOrderStatusCache struct{}

func (NoopOrderStatusCache) Get(context.Context, string) (*domain.OrderStatus, bool, error) {
	return nil, false, nil
}

func (NoopOrderStatusCache) Set(context.Context, string, domain.OrderStatus, time.Duration) error {
	return nil
}

func (NoopOrderStatusCache) Invalidate(context.Context, string) error {
	return nil
}
