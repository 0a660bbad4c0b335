package http

import (
	"net/http"
	"sync"
	"time"
)

// rateLimiter throttles requests per client IP with a fixed one-minute
// window. The dashboard is a low-traffic personal tool, so a coarse window
// is enough to stop runaway clients and scripted abuse.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow

	perMinute int
	stop      chan struct{}
	stopOnce  sync.Once
}

type rateWindow struct {
	start time.Time
	count int
}

func newRateLimiter(perMinute int, cleanupInterval time.Duration) *rateLimiter {
	rl := &rateLimiter{
		windows:   make(map[string]*rateWindow),
		perMinute: perMinute,
		stop:      make(chan struct{}),
	}
	go rl.cleanupLoop(cleanupInterval)
	return rl
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[clientIP]
	if !ok || now.Sub(w.start) > time.Minute {
		rl.windows[clientIP] = &rateWindow{start: now, count: 1}
		return true
	}

	w.count++
	return w.count <= rl.perMinute
}

func (rl *rateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for ip, w := range rl.windows {
				if w.start.Before(cutoff) {
					delete(rl.windows, ip)
				}
			}
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}

func (rl *rateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
