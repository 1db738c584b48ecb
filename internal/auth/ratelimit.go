package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"sourcehub/internal/observability"
)

// LoginRateLimiter throttles login submissions per client IP with an
// in-memory sliding window. It complements the per-account lockout: the
// lockout only counts failures against existing accounts, while this
// limiter also covers probing of unknown emails.
type LoginRateLimiter struct {
	mu         sync.Mutex
	maxHits    int
	window     time.Duration
	hits       map[string][]time.Time
	maxTracked int
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		maxHits:    maxHits,
		window:     window,
		hits:       make(map[string][]time.Time),
		maxTracked: 5000,
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(observability.ClientIP(r), time.Now().UTC())
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *LoginRateLimiter) allow(ip string, now time.Time) (bool, time.Duration) {
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := make([]time.Time, 0, len(l.hits[ip])+1)
	for _, hit := range l.hits[ip] {
		if hit.After(threshold) {
			recent = append(recent, hit)
		}
	}

	if len(recent) >= l.maxHits {
		l.hits[ip] = recent
		retryAfter := recent[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	l.hits[ip] = append(recent, now)
	if len(l.hits) > l.maxTracked {
		l.evictStale(threshold)
	}

	return true, 0
}

func (l *LoginRateLimiter) evictStale(threshold time.Time) {
	for ip, hits := range l.hits {
		if len(hits) == 0 || hits[len(hits)-1].Before(threshold) {
			delete(l.hits, ip)
		}
	}
}
