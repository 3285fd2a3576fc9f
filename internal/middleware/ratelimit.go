package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/skill-worlds/internal/identity"
	"golang.org/x/time/rate"
)

const limiterResetInterval = time.Hour

// RateLimiter hands out a token bucket per user. Requests are keyed by user
// ID only, not user and tab, so rotating tab session IDs does not reset the
// budget. Anonymous requests fall back to the remote IP.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	perSecond rate.Limit
	burst     int
	lastReset time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter allowing perSecond requests with burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		now:       time.Now,
	}
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop idle buckets periodically so the map does not grow without bound.
	now := l.now()
	switch {
	case l.lastReset.IsZero():
		l.lastReset = now
	case now.Sub(l.lastReset) > limiterResetInterval:
		l.limiters = make(map[string]*rate.Limiter)
		l.lastReset = now
	}

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.perSecond, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Allow reports whether a request for key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	return l.limiter(key).AllowN(l.now(), 1)
}

// Middleware rejects requests over budget with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := identity.UserIDFromContext(r.Context())
		if key == "" {
			key = "ip:" + identity.IPFromRequest(r)
		}
		if !l.Allow(key) {
			slog.Warn("Rate limit exceeded", "key", key, "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
