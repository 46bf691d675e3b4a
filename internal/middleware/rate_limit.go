package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BruksfildServices01/slot-coordinator/internal/httperr"
)

// RateLimitMiddleware caps how fast the page may drive the coordinator.
// The coordinator serves one user, so a single bucket covers every caller.
// A nil limiter disables the check.
func RateLimitMiddleware(limiter *rate.Limiter, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow() {
			logger.Warn("rate limit exceeded",
				zap.String("path", c.FullPath()),
				zap.String("ip", c.ClientIP()),
			)
			httperr.TooManyRequests(c, "rate_limited", "Too many requests. Try again shortly.")
			c.Abort()
			return
		}
		c.Next()
	}
}
