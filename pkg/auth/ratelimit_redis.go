package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter shared by all bridge replicas
// through Redis. Each subject gets one counter key per minute.
type RedisLimiter struct {
	client *redis.Client
	rpm    int
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter allowing rpm requests per minute per
// subject. rpm <= 0 disables limiting.
func NewRedisLimiter(client *redis.Client, rpm int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		rpm:    rpm,
		prefix: "bridge:ratelimit:",
		now:    time.Now,
	}
}

// Allow increments the subject's counter for the current minute. Redis
// failures allow the request.
func (l *RedisLimiter) Allow(ctx context.Context, identity *Identity) error {
	if l.rpm <= 0 {
		return nil
	}

	window := l.now().Unix() / 60
	key := l.prefix + identity.Subject + ":" + strconv.FormatInt(window, 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*time.Minute)
		return nil
	})
	if err != nil {
		slog.Warn("rate limiter unavailable, allowing request", "backend", "redis", "error", err)
		return nil
	}

	if incr.Val() > int64(l.rpm) {
		return ErrTooManyRequests
	}
	return nil
}

// Backend implements RateLimiter.
func (l *RedisLimiter) Backend() string { return "redis" }

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
