package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by client address.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
	// sweeps counts Allow calls; every sweepEvery calls idle keys are dropped.
	sweeps int
}

const sweepEvery = 1024

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether key is within its limit, recording the request
// when it is.
func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.take(key)
	return ok
}

// take is Allow plus the wait until the oldest hit in the window expires.
func (rl *RateLimiter) take(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	rl.sweeps++
	if rl.sweeps >= sweepEvery {
		rl.sweeps = 0
		rl.prune(cutoff)
	}

	live := trim(rl.hits[key], cutoff)
	if len(live) >= rl.limit {
		rl.hits[key] = live
		return false, live[0].Sub(cutoff)
	}
	rl.hits[key] = append(live, now)
	return true, 0
}

// trim drops hits at or before cutoff. hits is in arrival order.
func trim(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

func (rl *RateLimiter) prune(cutoff time.Time) {
	for key, hits := range rl.hits {
		if len(trim(hits, cutoff)) == 0 {
			delete(rl.hits, key)
		}
	}
}

// RateLimit answers 429 with Retry-After once a client exceeds rl. A nil
// limiter disables it. Health and metrics probes are never limited.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil || exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := rl.take(clientIP(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
