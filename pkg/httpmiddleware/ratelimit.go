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

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a client may make per window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// Methods restricts limiting to these HTTP methods. Requests with other
	// methods pass through without being counted. Empty means all methods.
	Methods []string
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window holds the request counts of the current fixed window and the one
// before it. The effective count weights the previous window by the share of
// it still covered by the sliding window.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

// Limiter is a per-client sliding window rate limiter.
type Limiter struct {
	max  int
	size time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter returns a Limiter admitting limit requests per size-long window.
func NewLimiter(limit int, size time.Duration) *Limiter {
	return &Limiter{
		max:     limit,
		size:    size,
		windows: make(map[string]*window),
	}
}

// Allow records a request by key at now. It reports whether the request is
// admitted, how many requests remain, and when the current window ends.
func (l *Limiter) Allow(key string, now time.Time) (allowed bool, remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{start: now.Truncate(l.size)}
		l.windows[key] = w
	}

	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*l.size:
		w.prev, w.curr = 0, 0
		w.start = now.Truncate(l.size)
	case elapsed >= l.size:
		w.prev, w.curr = w.curr, 0
		w.start = w.start.Add(l.size)
	}

	overlap := 1 - now.Sub(w.start).Seconds()/l.size.Seconds()
	overlap = math.Max(overlap, 0)
	count := w.prev*overlap + w.curr
	resetAt = w.start.Add(l.size)

	if count >= float64(l.max) {
		return false, 0, resetAt
	}
	w.curr++
	remaining = max(l.max-int(math.Ceil(count+1)), 0)
	return true, remaining, resetAt
}

// Evict drops clients idle for two full windows.
func (l *Limiter) Evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.windows, key)
		}
	}
}

func (l *Limiter) clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// RateLimit returns a middleware enforcing cfg per client. Rejected requests
// get 429 with a Retry-After header and the API error body. Counted requests
// carry X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimit(cfg, NewLimiter(cfg.Max, cfg.Window))
}

// RateLimitWithCleanup is like RateLimit but also evicts idle clients every
// two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg.Max, cfg.Window)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.Evict(now)
			}
		}
	}()
	return rateLimit(cfg, l)
}

func rateLimit(cfg RateLimitConfig, l *Limiter) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	var methods map[string]struct{}
	if len(cfg.Methods) > 0 {
		methods = make(map[string]struct{}, len(cfg.Methods))
		for _, m := range cfg.Methods {
			methods[strings.ToUpper(m)] = struct{}{}
		}
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if methods != nil {
				if _, ok := methods[r.Method]; !ok {
					next.ServeHTTP(w, r)
					return
				}
			}

			allowed, remaining, resetAt := l.Allow(keyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				retry := math.Ceil(max(time.Until(resetAt), 0).Seconds())
				h.Set("Retry-After", strconv.Itoa(int(retry)))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP, then
// the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
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
