package auth

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/marcus-qen/monfront/internal/frontend/users"
	"github.com/marcus-qen/monfront/internal/metrics"
	"golang.org/x/time/rate"
)

// UserRateLimitConfig configures per-user request throttling.
type UserRateLimitConfig struct {
	Enabled bool

	UserRequestsPerMinute  int
	AdminRequestsPerMinute int
	UserBurst              int
	AdminBurst             int

	// BypassPaths skip throttling (e.g. /healthz).
	BypassPaths []string

	// EntryTTL controls idle limiter eviction.
	EntryTTL time.Duration
}

// DefaultUserRateLimitConfig returns the built-in limits.
func DefaultUserRateLimitConfig() UserRateLimitConfig {
	return UserRateLimitConfig{
		Enabled:                true,
		UserRequestsPerMinute:  120,
		AdminRequestsPerMinute: 240,
		UserBurst:              40,
		AdminBurst:             80,
		BypassPaths:            []string{"/healthz", "/metrics"},
		EntryTTL:               30 * time.Minute,
	}
}

type userLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter throttles authenticated users with a token bucket per user.
type UserRateLimiter struct {
	cfg UserRateLimitConfig

	mu      sync.Mutex
	entries map[string]*userLimiterEntry
}

// NewUserRateLimiter fills zero fields of cfg from the defaults.
func NewUserRateLimiter(cfg UserRateLimitConfig) *UserRateLimiter {
	d := DefaultUserRateLimitConfig()
	if cfg.UserRequestsPerMinute <= 0 {
		cfg.UserRequestsPerMinute = d.UserRequestsPerMinute
	}
	if cfg.AdminRequestsPerMinute <= 0 {
		cfg.AdminRequestsPerMinute = d.AdminRequestsPerMinute
	}
	if cfg.UserBurst <= 0 {
		cfg.UserBurst = d.UserBurst
	}
	if cfg.AdminBurst <= 0 {
		cfg.AdminBurst = d.AdminBurst
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = d.EntryTTL
	}
	if len(cfg.BypassPaths) == 0 {
		cfg.BypassPaths = d.BypassPaths
	}
	return &UserRateLimiter{
		cfg:     cfg,
		entries: map[string]*userLimiterEntry{},
	}
}

// Wrap returns next throttled per user. It must run after the session middleware.
func (l *UserRateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		for _, bp := range l.cfg.BypassPaths {
			if strings.HasPrefix(r.URL.Path, bp) {
				next.ServeHTTP(w, r)
				return
			}
		}

		user := UserFromContext(r.Context())
		if user == nil {
			next.ServeHTTP(w, r)
			return
		}

		rpm, burst := l.limitForRole(user.Role)
		if l.allow(user.UserID, rpm, burst) {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := retryAfterSeconds(rpm)
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		metrics.RecordRateLimited("request", user.Role)
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":             "rate limit exceeded",
			"code":              "rate_limited",
			"retryAfterSeconds": retryAfter,
		})
	})
}

func (l *UserRateLimiter) allow(key string, rpm, burst int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(now)

	entry, ok := l.entries[key]
	if !ok {
		entry = &userLimiterEntry{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst),
		}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

func (l *UserRateLimiter) prune(now time.Time) {
	for k, v := range l.entries {
		if now.Sub(v.lastSeen) > l.cfg.EntryTTL {
			delete(l.entries, k)
		}
	}
}

func (l *UserRateLimiter) limitForRole(role string) (rpm, burst int) {
	switch role {
	case users.RoleAdmin, users.RoleSuperAdmin:
		return l.cfg.AdminRequestsPerMinute, l.cfg.AdminBurst
	default:
		return l.cfg.UserRequestsPerMinute, l.cfg.UserBurst
	}
}

func retryAfterSeconds(rpm int) int {
	if rpm <= 0 {
		return 1
	}
	seconds := int(math.Ceil(60.0 / float64(rpm)))
	if seconds < 1 {
		return 1
	}
	return seconds
}
