package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client token bucket rate limiter.
type RateLimitConfig struct {
	// Max is the bucket capacity and the sustained number of requests allowed
	// per Window.
	Max int
	// Window is the period over which Max requests refill.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request. Defaults to the
	// client IP (X-Forwarded-For, then X-Real-IP, then RemoteAddr).
	KeyFunc func(*http.Request) string
}

// bucket is a token bucket with lazy refill: tokens are recomputed from the
// elapsed time on each request instead of by a background ticker.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

type rateLimiter struct {
	cfg  RateLimitConfig
	rate float64 // tokens per second

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &rateLimiter{
		cfg:     cfg,
		rate:    float64(cfg.Max) / cfg.Window.Seconds(),
		buckets: make(map[string]*bucket),
	}
}

// take consumes one token for key. It reports whether the request is allowed,
// how many whole tokens remain, and when the bucket will next be full.
func (rl *rateLimiter) take(key string, now time.Time) (allowed bool, remaining int, fullAt time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.cfg.Max), lastSeen: now}
		rl.buckets[key] = b
	} else {
		b.tokens = math.Min(float64(rl.cfg.Max), b.tokens+now.Sub(b.lastSeen).Seconds()*rl.rate)
		b.lastSeen = now
	}

	if b.tokens >= 1 {
		b.tokens--
		allowed = true
	}

	missing := float64(rl.cfg.Max) - b.tokens
	fullAt = now.Add(time.Duration(missing / rl.rate * float64(time.Second)))
	return allowed, int(b.tokens), fullAt
}

// evict drops buckets idle long enough to have fully refilled.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.cfg.Window {
			delete(rl.buckets, key)
		}
	}
}

// RateLimit returns a middleware enforcing a per-key token bucket limit.
// When the bucket is empty it answers 429 with a Retry-After header. Every
// response carries X-RateLimit-Limit and X-RateLimit-Remaining.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimitMiddleware(newRateLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that evicts
// idle buckets every Window. The goroutine stops when ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go func() {
		ticker := time.NewTicker(cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.evict(now)
			}
		}
	}()
	return rateLimitMiddleware(rl)
}

func rateLimitMiddleware(rl *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, fullAt := rl.take(rl.cfg.KeyFunc(r), time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				retryAfter := math.Ceil(1 / rl.rate)
				if until := time.Until(fullAt).Seconds(); until < retryAfter {
					retryAfter = math.Ceil(until)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":429,"message":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
