package httpmiddleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client rate limiter.
type RateLimitConfig struct {
	// Limit is the number of requests allowed per Window.
	Limit int
	// Window is the length of the counting window.
	Window time.Duration
	// KeyFunc extracts the client key from a request. Defaults to the
	// client IP taken from X-Forwarded-For, X-Real-IP or RemoteAddr.
	KeyFunc func(*http.Request) string
}

type rateWindow struct {
	start time.Time
	prev  int
	curr  int
}

// RateLimiter enforces a sliding-window request limit per client key.
// The previous window's count is weighted by the remaining overlap, which
// smooths bursts at window boundaries without per-request timestamps.
type RateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	clients map[string]*rateWindow

	now  func() time.Time
	done chan struct{}
}

// NewRateLimiter creates a limiter and starts its idle-entry cleanup.
// Call Close when the limiter is no longer needed.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	rl := &RateLimiter{
		cfg:     cfg,
		clients: make(map[string]*rateWindow),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	close(rl.done)
}

// Middleware returns the rate-limiting middleware. Rejected requests get
// a 429 with Retry-After; every response carries X-RateLimit-* headers.
func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.cfg.KeyFunc(r)
			allowed, remaining, reset := rl.allow(key)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				retry := int(time.Until(reset).Seconds()) + 1
				h.Set("Retry-After", strconv.Itoa(retry))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string) (allowed bool, remaining int, reset time.Time) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cw, ok := rl.clients[key]
	if !ok {
		cw = &rateWindow{start: now}
		rl.clients[key] = cw
	}

	elapsed := now.Sub(cw.start)
	switch {
	case elapsed >= 2*rl.cfg.Window:
		cw.start = now
		cw.prev = 0
		cw.curr = 0
		elapsed = 0
	case elapsed >= rl.cfg.Window:
		cw.start = cw.start.Add(rl.cfg.Window)
		cw.prev = cw.curr
		cw.curr = 0
		elapsed -= rl.cfg.Window
	}

	overlap := 1 - float64(elapsed)/float64(rl.cfg.Window)
	weighted := float64(cw.prev)*overlap + float64(cw.curr)

	reset = cw.start.Add(rl.cfg.Window)
	if weighted >= float64(rl.cfg.Limit) {
		return false, 0, reset
	}

	cw.curr++
	remaining = rl.cfg.Limit - int(weighted) - 1
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining, reset
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			cutoff := rl.now().Add(-2 * rl.cfg.Window)
			rl.mu.Lock()
			for key, cw := range rl.clients {
				if cw.start.Before(cutoff) {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
