package middleware

import (
	"sync"
	"time"

	"jukwaa/internal/apperr"
	"jukwaa/internal/metrics"
	"jukwaa/internal/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per actor. Idle buckets fall out
// of the LRU after ttl.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *utils.TTLCache[*rate.Limiter]
	limit    rate.Limit
	burst    int
}

func NewRateLimiter(perSecond float64, burst int, size int, ttl time.Duration) (*RateLimiter, error) {
	cache, err := utils.NewTTLCache[*rate.Limiter](size, ttl)
	if err != nil {
		return nil, err
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiters: cache, limit: rate.Limit(perSecond), burst: burst}, nil
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// 每次访问刷新过期时间
	l.limiters.Set(key, lim)
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware rejects mutations over budget with 429 RATE_LIMITED. Anonymous
// callers are keyed by client IP.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if actor := CurrentActor(c); !actor.Anonymous() {
			key = "actor:" + actor.ID
		}
		if !l.allow(key) {
			metrics.RateLimitedTotal.Inc()
			abortWithError(c, apperr.ErrRateLimited)
			return
		}
		c.Next()
	}
}
