package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RateLimitConfig struct {
	Limit  int           // Maximum requests allowed per window
	Window time.Duration // Sliding window length
}

type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter implements a sliding-window limit with one sorted set per key.
type RateLimiter struct {
	client *Client
	logger *zap.Logger
	config RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(client *Client, logger *zap.Logger, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// Allow records one hit for key and reports whether it fits in the window.
// The hit is added inside MULTI before counting, so concurrent callers
// cannot both squeeze into the last slot; a denied hit is removed again.
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	now := r.now()
	windowStart := now.Add(-r.config.Window)
	redisKey := "ratelimit:" + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	var countCmd *redis.IntCmd
	_, err := r.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
		countCmd = pipe.ZCard(ctx, redisKey)
		pipe.Expire(ctx, redisKey, r.config.Window+time.Second)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	count := int(countCmd.Val())
	result := &RateLimitResult{
		Limit:   r.config.Limit,
		ResetAt: now.Add(r.config.Window),
	}

	if count > r.config.Limit {
		if err := r.client.rdb.ZRem(ctx, redisKey, member).Err(); err != nil {
			r.logger.Warn("failed to drop rejected rate limit entry", zap.Error(err), zap.String("key", key))
		}
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int("count", count-1),
			zap.Int("limit", r.config.Limit),
		)
		return result, nil
	}

	result.Allowed = true
	result.Remaining = r.config.Limit - count
	return result, nil
}
