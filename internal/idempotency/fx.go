package idempotency

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/docuflow/billing/internal/config"
)

var Module = fx.Module("idempotency",
	fx.Provide(provideRedis),
	fx.Provide(NewCache),
)

// provideRedis returns nil when no Redis address is configured; the cache
// degrades to a no-op and the database remains the source of truth.
func provideRedis(cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Named("idempotency").Info("redis not configured, settled cache disabled")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
