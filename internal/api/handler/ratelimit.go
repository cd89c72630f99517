package handler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/auth"
	"chatline/backend/internal/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const visitorIdle = 30 * time.Minute

// IPRateLimiter allows n requests per window per client IP, refilled
// continuously.
type IPRateLimiter struct {
	visitors sync.Map
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

func NewIPRateLimiter(n int, window time.Duration) *IPRateLimiter {
	if n <= 0 {
		return &IPRateLimiter{limit: rate.Inf}
	}
	return &IPRateLimiter{
		limit: rate.Every(window / time.Duration(n)),
		burst: n,
	}
}

// Allow reports whether key may proceed now.
func (l *IPRateLimiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}
	v, found := l.visitors.Load(key)
	if !found {
		fresh := &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		v, _ = l.visitors.LoadOrStore(key, fresh)
	}
	vi := v.(*visitor)
	vi.lastSeen.Store(time.Now().UnixNano())
	return vi.limiter.Allow()
}

// Run drops visitors idle for longer than visitorIdle until ctx is done.
func (l *IPRateLimiter) Run(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cutoff := time.Now().Add(-visitorIdle).UnixNano()
			l.visitors.Range(func(k, v interface{}) bool {
				if v.(*visitor).lastSeen.Load() < cutoff {
					l.visitors.Delete(k)
				}
				return true
			})
		}
	}
}

func (l *IPRateLimiter) Middleware(writeErr auth.ErrorWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.Allow(ip) {
			log := logger.Ctx(c.Request.Context())
			log.Warn().Str(logger.FieldClientIP, ip).Str(logger.FieldPath, c.FullPath()).Msg("rate limit exceeded")
			writeErr(c, apperr.RateLimit())
			return
		}
		c.Next()
	}
}
