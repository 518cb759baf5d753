package auth

import (
	"sync"
	"time"
)

// RateLimiter provides per-key request rate limiting using a fixed window.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int           // max requests per window
	window  time.Duration // window size
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a rate limiter.
// Example: NewRateLimiter(10, time.Minute) → 10 login attempts per minute per address.
func NewRateLimiter(limit int, windowSize time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		window:  windowSize,
		now:     time.Now,
	}
}

// Allow checks if a request from the given key is allowed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.prune(now)

	w, ok := rl.windows[key]
	if !ok || now.After(w.resetAt) {
		rl.windows[key] = &window{count: 1, resetAt: now.Add(rl.window)}
		return true
	}

	if w.count >= rl.limit {
		return false
	}

	w.count++
	return true
}

// Remaining returns how many requests are left in the current window.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || rl.now().After(w.resetAt) {
		return rl.limit
	}
	rem := rl.limit - w.count
	if rem < 0 {
		return 0
	}
	return rem
}

func (rl *RateLimiter) prune(now time.Time) {
	for k, w := range rl.windows {
		if now.After(w.resetAt) {
			delete(rl.windows, k)
		}
	}
}
