package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter caps questions per tenant in fixed hourly windows. It fails
// open: when Redis is unreachable every request is allowed.
type RateLimiter struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{client: client, logger: logger, now: time.Now}
}

func windowKey(tenantID string, t time.Time) string {
	return fmt.Sprintf("ratelimit:tenant:%s:%s", tenantID, t.UTC().Format("2006-01-02-15"))
}

// Allow reports whether the tenant is still under limit for the current hour
// and the number of requests counted so far.
func (rl *RateLimiter) Allow(ctx context.Context, tenantID string, limit int) (bool, int64) {
	if limit <= 0 {
		return true, 0
	}
	key := windowKey(tenantID, rl.now())

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		rl.logger.Warn("rate limiter unavailable, allowing request", zap.String("tenant_id", tenantID), zap.Error(err))
		return true, 0
	}

	if count == 1 {
		rl.client.Expire(ctx, key, time.Hour)
	}

	return count <= int64(limit), count
}
