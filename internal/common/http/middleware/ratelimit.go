package middleware

import (
	"context"
	"fmt"
	"time"

	"learnhub/internal/common/cache"
	pkgerrors "learnhub/pkg/errors"
	"learnhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RateLimitPolicy bounds requests per client IP and per caller within a fixed window.
type RateLimitPolicy struct {
	Window  time.Duration `yaml:"window"`
	IPMax   int           `yaml:"ipMax"`
	UserMax int           `yaml:"userMax"`
}

// RateLimiter enforces fixed-window limits using the shared cache.
type RateLimiter struct {
	cache   cache.BasicOps
	timeout time.Duration
}

func NewRateLimiter(cacheClient cache.BasicOps, timeout time.Duration) *RateLimiter {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &RateLimiter{cache: cacheClient, timeout: timeout}
}

// Allow counts one hit on key and fails with TooManyRequests once max is exceeded.
func (l *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if l == nil || l.cache == nil || max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		ttl, ttlErr := l.cache.TTL(ctxCache, key)
		if ttlErr == nil && ttl < 0 {
			_ = l.cache.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage("rate limit exceeded, slow down")
	}
	return nil
}

// RateLimitMiddleware applies policy to one route group. Cache failures let the request through.
func RateLimitMiddleware(limiter *RateLimiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		type check struct {
			key string
			max int
		}
		checks := make([]check, 0, 2)
		if policy.IPMax > 0 {
			checks = append(checks, check{fmt.Sprintf("learnhub:rate:ip:%s:%s", c.ClientIP(), routeKey), policy.IPMax})
		}
		if username := c.GetString(usernameContextKey); policy.UserMax > 0 && username != "" {
			checks = append(checks, check{fmt.Sprintf("learnhub:rate:user:%s:%s", username, routeKey), policy.UserMax})
		}
		for _, ch := range checks {
			err := limiter.Allow(c.Request.Context(), ch.key, ch.max, policy.Window)
			if pkgerrors.Is(err, pkgerrors.TooManyRequests) {
				response.AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}
