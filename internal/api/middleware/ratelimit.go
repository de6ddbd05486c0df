package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/pkg/util"
)

// RateLimiter is a sliding-window limiter keyed by client.
type RateLimiter struct {
	requests int
	window   time.Duration
	clock    util.Clock

	mu      sync.Mutex
	clients map[string][]time.Time
	sweeps  int
}

func NewRateLimiter(requests, windowSeconds int, clock util.Clock) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	if clock == nil {
		clock = util.SystemClock()
	}
	return &RateLimiter{
		requests: requests,
		window:   time.Duration(windowSeconds) * time.Second,
		clock:    clock,
		clients:  make(map[string][]time.Time),
	}
}

// Allow records a request for key and reports whether it fits the window,
// how many requests remain and when the window resets.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.window)

	rl.sweeps++
	if rl.sweeps%1000 == 0 {
		rl.evict(windowStart)
	}

	stamps := rl.clients[key]
	i := 0
	for i < len(stamps) && !stamps[i].After(windowStart) {
		i++
	}
	stamps = stamps[i:]

	if len(stamps) >= rl.requests {
		rl.clients[key] = stamps
		return false, 0, stamps[0].Add(rl.window)
	}

	stamps = append(stamps, now)
	rl.clients[key] = stamps
	return true, rl.requests - len(stamps), stamps[0].Add(rl.window)
}

// evict drops clients with no requests inside the window. Caller holds mu.
func (rl *RateLimiter) evict(windowStart time.Time) {
	for key, stamps := range rl.clients {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(windowStart) {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimiter) middleware(keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, reset := rl.Allow(keyFn(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				retry := int64(reset.Sub(rl.clock.Now()).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit limits requests per client IP.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return limiter.middleware(clientIP)
}

// RateLimitByUser limits requests per authenticated user, falling back to
// the client IP. Must run after Auth to see the user.
func RateLimitByUser(limiter *RateLimiter) func(http.Handler) http.Handler {
	return limiter.middleware(func(r *http.Request) string {
		if id := GetUserID(r.Context()); id != uuid.Nil {
			return "user:" + id.String()
		}
		return clientIP(r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
