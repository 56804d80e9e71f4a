package security

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles the public ingress with a per-IP counter in Redis.
// The webhook endpoint is the only surface an outsider can hit, so a burst
// from one address is dropped before it reaches signature verification.
type RateLimiter struct {
	redis     *redis.Client
	perMinute int64
}

func NewRateLimiter(redisClient *redis.Client, perMinute int64) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &RateLimiter{redis: redisClient, perMinute: perMinute}
}

func (r *RateLimiter) WebhookRateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			key := fmt.Sprintf("ratelimit:webhook:%s", ip)
			ctx := c.Request().Context()

			count, err := r.redis.Incr(ctx, key).Result()
			if err == nil {
				if count == 1 {
					r.redis.Expire(ctx, key, time.Minute)
				}
				if count > r.perMinute {
					return c.JSON(http.StatusTooManyRequests, map[string]string{
						"error": "Too many requests",
					})
				}
			}

			return next(c)
		}
	}
}
