package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorlane/mentorlane/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BookingCreateLimiter throttles booking creation per learner. A nil limiter
// allows everything, so callers never branch on configuration.
type BookingCreateLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewBookingCreateLimiter(cfg config.Config, log *zap.Logger) *BookingCreateLimiter {
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
	return &BookingCreateLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimit.BookingCreateRate,
		burst:  cfg.RateLimit.BookingCreateBurst,
		log:    log.Named("ratelimit"),
	}
}

// Allow reports whether the learner may create another booking right now.
// Redis failures are logged and fail open; throttling is protection, not a
// correctness guarantee.
func (l *BookingCreateLimiter) Allow(ctx context.Context, learnerID snowflake.ID) bool {
	if l == nil || l.bucket == nil {
		return true
	}
	key := fmt.Sprintf("ratelimit:booking:create:%s", learnerID.String())
	result, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request",
			zap.Int64("learner_id", int64(learnerID)), zap.Error(err))
		return true
	}
	return result.Allowed
}
