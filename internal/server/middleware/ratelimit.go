package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window per-client request counter. Windows reset
// wholesale rather than sliding, which matches how login throttles usually
// behave and keeps the bookkeeping to one map.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*windowCount
	nowF    func() time.Time
}

type windowCount struct {
	start time.Time
	n     int
}

// NewRateLimiter allows limit requests per key per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*windowCount),
		nowF:    time.Now,
	}
}

// Allow reports whether key has budget left in the current window.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.nowF()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	wc, ok := rl.clients[key]
	if !ok || now.Sub(wc.start) >= rl.window {
		if len(rl.clients) > 10000 {
			rl.sweepLocked(now)
		}
		rl.clients[key] = &windowCount{start: now, n: 1}
		return true
	}
	wc.n++
	return wc.n <= rl.limit
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for k, wc := range rl.clients {
		if now.Sub(wc.start) >= rl.window {
			delete(rl.clients, k)
		}
	}
}

// Middleware applies the limiter keyed by client IP. enabled=false makes it a
// pass-through, used for local development.
func (rl *RateLimiter) Middleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "Too many authentication attempts, please try again later",
			})
			return
		}
		c.Next()
	}
}
