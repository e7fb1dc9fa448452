package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"vendora.dev/internal/obs"
)

// Redis is a fixed-window limiter shared across processes: INCR a per-key
// counter, EXPIRE it on first hit, reject once the window count exceeds the
// ceiling. A Redis outage fails open; a throttle should degrade to admitting
// traffic rather than taking the route down.
type Redis struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
}

// NewRedis constructs a Redis limiter allowing perMinute requests per key.
func NewRedis(client *redis.Client, prefix string, perMinute int) *Redis {
	if perMinute < 1 {
		perMinute = 1
	}
	return &Redis{
		client: client,
		prefix: prefix,
		max:    int64(perMinute),
		window: time.Minute,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) bool {
	if key == "" {
		key = "unknown"
	}
	full := r.prefix + ":" + key
	count, err := r.client.Incr(ctx, full).Result()
	if err != nil {
		obs.LogError("rate limiter redis unavailable", map[string]any{"error": err.Error()})
		return true
	}
	if count == 1 {
		if err := r.client.Expire(ctx, full, r.window).Err(); err != nil {
			obs.LogError("rate limiter redis expire failed", map[string]any{"error": err.Error()})
		}
	}
	return count <= r.max
}
