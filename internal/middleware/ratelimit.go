package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// limiterStore is the slice of redis the limiter needs. *redis.Client
// satisfies it.
type limiterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RateLimit enforces a fixed-window counter in redis. The key owner is the
// authenticated user when present, otherwise the client IP.
func RateLimit(rdb limiterStore, scope string, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner, _ := c.Locals("userId").(string)
		if owner == "" {
			owner = c.IP()
		}

		key := fmt.Sprintf("rl:%s:%s", scope, owner)

		count, err := rdb.Incr(c.UserContext(), key).Result()
		if err != nil {
			// fail open when redis is unreachable
			return c.Next()
		}
		if count == 1 {
			if err := rdb.Expire(c.UserContext(), key, window).Err(); err != nil {
				// a counter without a TTL would throttle the owner forever
				rdb.Del(c.UserContext(), key)
				return c.Next()
			}
		}

		if count > int64(limit) {
			ttl, err := rdb.TTL(c.UserContext(), key).Result()
			if err != nil {
				return c.Next()
			}
			if ttl < 0 {
				// stale counter with no expiry, left by an earlier Expire
				// failure; reset it instead of throttling forever
				rdb.Del(c.UserContext(), key)
				return c.Next()
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"message":     "Too many requests, please try again later",
				"retry_after": int(ttl.Seconds()),
			})
		}

		return c.Next()
	}
}
