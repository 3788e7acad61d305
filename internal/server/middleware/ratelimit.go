package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"jobtrackr/backend/internal/server/httpx"
)

// RateLimiter keeps one token bucket per client IP. Idle clients are dropped by Cleanup.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	maxIdle  time.Duration
	now      func() time.Time
}

// NewRateLimiter allows requestsPerMinute per client with an equal burst. requestsPerMinute <= 0 returns nil,
// and a nil *RateLimiter allows everything.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    requestsPerMinute,
		maxIdle:  30 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether clientID may make a request now.
func (l *RateLimiter) Allow(clientID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[clientID]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[clientID] = lim
	}
	now := l.now()
	l.lastSeen[clientID] = now
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}

// Cleanup drops clients idle for longer than the idle window and returns how many were removed.
func (l *RateLimiter) Cleanup() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for id, seen := range l.lastSeen {
		if now.Sub(seen) > l.maxIdle {
			delete(l.limiters, id)
			delete(l.lastSeen, id)
			n++
		}
	}
	return n
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (l *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// RateLimit rejects requests over the per-client limit, keyed on the IP resolved by
// ClientIPResolver.Middleware, with 429 {"error":"rate_limited"}.
func RateLimit(l *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(requestIP(r)) {
				w.Header().Set("Retry-After", "60")
				httpx.WriteError(w, http.StatusTooManyRequests, httpx.ErrCodeRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
