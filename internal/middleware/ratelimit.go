package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimiter throttles an endpoint per client IP using a counter window in
// Redis. Without Redis it falls back to an in-process window, which is good
// enough for a single instance and better than letting everything through.
type RateLimiter struct {
	redis  *redis.Client
	logger *logrus.Logger

	mu      sync.Mutex
	windows map[string]*localWindow
}

type localWindow struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(redisClient *redis.Client, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		redis:   redisClient,
		logger:  logger,
		windows: make(map[string]*localWindow),
	}
}

// Limit allows at most maxAttempts requests per client IP per window for the
// named endpoint.
func (r *RateLimiter) Limit(name string, maxAttempts int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s:%s", name, c.ClientIP())

		allowed, err := r.allow(c, key, maxAttempts, window)
		if err != nil {
			// Redis trouble never blocks traffic
			r.logger.WithError(err).Warn("Rate limit check failed, allowing request")
			c.Next()
			return
		}

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please try again later",
				"code":  "RATE_LIMITED",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (r *RateLimiter) allow(c *gin.Context, key string, maxAttempts int, window time.Duration) (bool, error) {
	if r.redis == nil {
		return r.allowLocal(key, maxAttempts, window), nil
	}

	ctx := c.Request.Context()

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(maxAttempts), nil
}

func (r *RateLimiter) allowLocal(key string, maxAttempts int, window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	w, ok := r.windows[key]
	if !ok || now.After(w.resetAt) {
		r.windows[key] = &localWindow{count: 1, resetAt: now.Add(window)}
		return true
	}

	w.count++
	return w.count <= maxAttempts
}
