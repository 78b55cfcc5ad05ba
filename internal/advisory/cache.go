package advisory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cached memoizes status advisories in Redis so that transitions into a
// status seen recently (by any target) do not hit the model again.
// Free-text completions are never cached.
type Cached struct {
	Inner  Generator
	Redis  *redis.Client
	TTL    time.Duration
	Prefix string
	Logger *zap.Logger
}

func NewCached(inner Generator, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{Inner: inner, Redis: rdb, TTL: ttl, Prefix: "uptimeadvisor:advisory:", Logger: logger}
}

func (c *Cached) key(statusCode int) string {
	return fmt.Sprintf("%sstatus:%d", c.Prefix, statusCode)
}

func (c *Cached) Generate(ctx context.Context, statusCode int) (string, error) {
	key := c.key(statusCode)
	hit, err := c.Redis.Get(ctx, key).Result()
	if err == nil && hit != "" {
		return hit, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.Logger.Warn("advisory_cache_read_failed", zap.String("key", key), zap.Error(err))
	}

	text, err := c.Inner.Generate(ctx, statusCode)
	if err != nil {
		return "", err
	}
	if err := c.Redis.Set(ctx, key, text, c.TTL).Err(); err != nil {
		c.Logger.Warn("advisory_cache_write_failed",
			zap.String("key", key),
			zap.Int("status", statusCode),
			zap.Error(err),
		)
	}
	return text, nil
}

func (c *Cached) Complete(ctx context.Context, prompt string) (string, error) {
	return c.Inner.Complete(ctx, prompt)
}
