package middleware

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/devfleet/iot-device-api/internal/apperr"
	"github.com/devfleet/iot-device-api/internal/cache"
	"github.com/devfleet/iot-device-api/internal/config"
)

// RateLimitRule names an endpoint group and its fixed window. Routes
// sharing an endpoint name share one counter per identity.
type RateLimitRule struct {
	Endpoint string
	Limit    int
	Window   time.Duration
}

// RateLimit returns a fixed-window limiter middleware for one endpoint
// group. The counter key is `<prefix>:<endpoint>:<identity>` where the
// identity is the authenticated user id, falling back to the caller's IP.
// The algorithm is a single atomic INCR; the first increment of a window
// also sets the key's expiry. Bursts straddling a window boundary can pass
// up to twice the limit; that is a property of fixed windows, not a bug.
// When the counting store is unreachable the limiter fails open: keeping
// the API available wins over strict enforcement, but the degradation is
// logged.
func RateLimit(cfg config.RateLimitConfig, store cache.Store, rule RateLimitRule) echo.MiddlewareFunc {
	if !cfg.Enabled || store == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	limit := rule.Limit
	if limit <= 0 {
		limit = cfg.Limit
	}
	window := rule.Window
	if window <= 0 {
		window = cfg.Window
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := fmt.Sprintf("%s:%s:%s", cfg.Prefix, rule.Endpoint, callerKey(c))

			count, err := store.Incr(ctx, key)
			if err != nil {
				log.Printf("ratelimit: store unreachable, failing open: %v", err)
				return next(c)
			}
			if count == 1 {
				if err := store.Expire(ctx, key, window); err != nil {
					log.Printf("ratelimit: expire failed for %s: %v", key, err)
				}
			}

			if count > int64(limit) {
				retry := int(window / time.Second)
				if ttl, err := store.TTL(ctx, key); err == nil && ttl > 0 {
					retry = int((ttl + time.Second - 1) / time.Second)
				}
				if cfg.Debug {
					c.Logger().Infof("ratelimit: block key=%s count=%d retry=%ds", key, count, retry)
				}
				return apperr.TooManyRequests(
					fmt.Sprintf("Too many requests. Please try again in %d seconds.", retry), retry)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			remaining := int64(limit) - count
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			return next(c)
		}
	}
}
