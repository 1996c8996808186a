package middleware

import (
	"sync/atomic"
	"time"

	"murmur/pkg/config"
	apperrors "murmur/pkg/errors"
	"murmur/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const sweepEvery = 1024

// NewHTTPRateLimitMiddleware applies per-IP token buckets and an optional
// cap on concurrent requests.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	limiters := ratelimit.NewKeyedLimiter(rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond), cfg.RateLimiting.HTTP.Burst)

	var globalSem chan struct{}
	if cfg.RateLimiting.HTTP.MaxConcurrent > 0 {
		globalSem = make(chan struct{}, cfg.RateLimiting.HTTP.MaxConcurrent)
	}

	var requests atomic.Uint64
	return func(c *gin.Context) {
		if globalSem != nil {
			select {
			case globalSem <- struct{}{}:
				defer func() { <-globalSem }()
			default:
				abort(c, apperrors.NewServiceUnavailableError("too many concurrent requests"))
				return
			}
		}

		if !limiters.Allow(ratelimit.ClientIP(c.Request)) {
			c.Header("Retry-After", "1")
			abort(c, apperrors.NewRateLimitError())
			return
		}

		if requests.Add(1)%sweepEvery == 0 {
			limiters.Sweep(10 * time.Minute)
		}
		c.Next()
	}
}
