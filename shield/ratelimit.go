package shield

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines the per-IP request budget.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultRateLimit allows 120 requests per IP per minute.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{MaxRequests: 120, Window: time.Minute}
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter provides per-IP rate limiting with lazy bucket expiry.
// State is process-local; in a multi-instance deployment each instance
// has its own budget.
type RateLimiter struct {
	config  RateLimitConfig
	buckets sync.Map
	exclude []string // path prefixes excluded from rate limiting
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter. excludePrefixes lists path
// prefixes (e.g. "/health") that bypass limiting.
func NewRateLimiter(cfg RateLimitConfig, excludePrefixes ...string) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		exclude: excludePrefixes,
		now:     time.Now,
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	now := rl.now()

	val, loaded := rl.buckets.LoadOrStore(ip, &bucket{
		count:   1,
		resetAt: now.Add(rl.config.Window),
	})
	if !loaded {
		return true
	}

	b := val.(*bucket)
	if now.After(b.resetAt) {
		b.count = 1
		b.resetAt = now.Add(rl.config.Window)
		return true
	}

	b.count++
	return b.count <= rl.config.MaxRequests
}

// Middleware enforces the rate limit, responding 429 JSON when exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := ExtractIP(r)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("ratelimit: request blocked", "ip", ip, "path", r.URL.Path)

		w.Header().Set("Retry-After", "60")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "rate limit exceeded",
		})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
