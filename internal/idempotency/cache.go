// Package idempotency provides a Redis fast path in front of the database
// uniqueness guarantee. The cache is advisory: a miss (or no Redis at all)
// falls through to the insert-or-claim path, which is the real guard.
package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const settledTTL = 72 * time.Hour

type Cache struct {
	client *redis.Client
	log    *zap.Logger
}

// NewCache accepts a nil client; every method degrades to a no-op so callers
// never branch on whether Redis is configured.
func NewCache(client *redis.Client, log *zap.Logger) *Cache {
	return &Cache{
		client: client,
		log:    log.Named("idempotency.cache"),
	}
}

// IsSettled reports whether the payment is already known to be settled.
// Errors are treated as a miss; the database still enforces correctness.
func (c *Cache) IsSettled(ctx context.Context, gateway, gatewayPaymentID string) bool {
	if c == nil || c.client == nil {
		return false
	}
	n, err := c.client.Exists(ctx, settledKey(gateway, gatewayPaymentID)).Result()
	if err != nil {
		c.log.Warn("settled lookup failed", zap.Error(err))
		return false
	}
	return n > 0
}

func (c *Cache) MarkSettled(ctx context.Context, gateway, gatewayPaymentID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, settledKey(gateway, gatewayPaymentID), "1", settledTTL).Err(); err != nil {
		c.log.Warn("settled mark failed", zap.Error(err))
	}
}

func settledKey(gateway, gatewayPaymentID string) string {
	return fmt.Sprintf("settled:%s:%s",
		strings.ToLower(strings.TrimSpace(gateway)),
		strings.TrimSpace(gatewayPaymentID),
	)
}
