package middleware

import (
	"time"

	"tradeleague/pkg/errutil"
	"tradeleague/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimit throttles per client IP using the shared sliding-window limiter.
// A limiter outage fails open: a broken redis must not take the read API down.
func RateLimit(limiter *ratelimit.Limiter, window time.Duration, max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP(), window, max, 1)
		if err != nil {
			zap.L().Warn("rate limiter unavailable, admitting request", zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			_ = c.Error(errutil.TooManyRequest("rate limit exceeded", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
