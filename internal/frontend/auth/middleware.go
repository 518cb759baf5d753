package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

const userContextKey contextKey = "user"

// UserFromContext retrieves the authenticated session user from request context.
func UserFromContext(ctx context.Context) *AuthenticatedUser {
	user, _ := ctx.Value(userContextKey).(*AuthenticatedUser)
	return user
}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user *AuthenticatedUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// Middleware authenticates requests by session cookie.
type Middleware struct {
	sessions   SessionValidator
	users      UserLookup
	logger     *zap.Logger
	skipExact  map[string]bool
	skipPrefix []string
}

// NewMiddleware builds session middleware. Paths ending in "*" skip by prefix.
func NewMiddleware(sessions SessionValidator, lookup UserLookup, logger *zap.Logger, skipPaths []string) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	skipExact := make(map[string]bool, len(skipPaths))
	skipPrefix := make([]string, 0)
	for _, p := range skipPaths {
		if strings.HasSuffix(p, "*") {
			skipPrefix = append(skipPrefix, strings.TrimSuffix(p, "*"))
			continue
		}
		skipExact[p] = true
	}

	return &Middleware{
		sessions:   sessions,
		users:      lookup,
		logger:     logger,
		skipExact:  skipExact,
		skipPrefix: skipPrefix,
	}
}

// Wrap returns the wrapped HTTP handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.shouldSkip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		user := m.authenticate(r)
		if user == nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (m *Middleware) shouldSkip(path string) bool {
	if path == "/login" {
		return true
	}
	if m.skipExact[path] {
		return true
	}
	for _, p := range m.skipPrefix {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (m *Middleware) authenticate(r *http.Request) *AuthenticatedUser {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil
	}

	sess, err := m.sessions.Validate(cookie.Value)
	if err != nil || sess == nil {
		return nil
	}

	u, err := m.users.Get(sess.UserID)
	if err != nil {
		m.logger.Debug("session user lookup failed", zap.String("user_id", sess.UserID), zap.Error(err))
		return nil
	}
	if !u.Enabled {
		return nil
	}

	return NewAuthenticatedUser(u, sess)
}
