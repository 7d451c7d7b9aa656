package httpx

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/splax/teamhub/pkg/logger"
)

type redisRateLimiter struct {
	client  redis.UniversalClient
	logger  *logger.Logger
	prefix  string
	timeout time.Duration
}

// NewRedisRateLimiter constructs a Redis backed rate limiter. The client is
// owned by the caller and is not closed by Close.
func NewRedisRateLimiter(client redis.UniversalClient, log *logger.Logger) RateLimiter {
	if log == nil {
		log = logger.Nop()
	}
	return &redisRateLimiter{
		client:  client,
		logger:  log,
		prefix:  "teamhub:ratelimit:",
		timeout: 250 * time.Millisecond,
	}
}

func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	redisKey := rl.prefix + key
	counter, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		rl.logRedisError("incr", err)
		return rateDecision{allowed: true}
	}
	if counter == 1 {
		if err := rl.client.Expire(ctx, redisKey, window).Err(); err != nil {
			rl.logRedisError("expire", err)
		}
	}
	ttl, err := rl.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = window
	}
	allowed := int(counter) <= limit
	return rateDecision{
		allowed:   allowed,
		count:     int(counter),
		windowEnd: time.Now().Add(ttl),
	}
}

func (rl *redisRateLimiter) Close() {}

func (rl *redisRateLimiter) logRedisError(op string, err error) {
	rl.logger.Error("redis rate limiter error", "op", op, "error", err)
}
