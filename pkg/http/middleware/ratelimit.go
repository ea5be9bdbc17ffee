package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Limiter is satisfied by internal/service/ratelimit.Limiter.
type Limiter interface {
	Allow(key string, capacity, refillPerSec float64) bool
}

// RateLimit throttles per client IP and route.
func RateLimit(l Limiter, capacity int, refillPerSec float64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP() + ":" + c.Path()
			if !l.Allow(key, float64(capacity), refillPerSec) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
