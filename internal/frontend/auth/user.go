package auth

import (
	"github.com/marcus-qen/monfront/internal/frontend/csrf"
	"github.com/marcus-qen/monfront/internal/frontend/mvc"
	"github.com/marcus-qen/monfront/internal/frontend/session"
	"github.com/marcus-qen/monfront/internal/frontend/users"
)

// AuthenticatedUser is stored in request context for session-authenticated users.
type AuthenticatedUser struct {
	UserID   string   `json:"id"`
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Rules    []string `json:"rules"`
	Debug    bool     `json:"debug_mode"`

	// SessionID and CSRFSecret identify the session that authenticated the request.
	SessionID  string `json:"-"`
	CSRFSecret string `json:"-"`
}

var _ mvc.User = (*AuthenticatedUser)(nil)

// NewAuthenticatedUser combines an account with the session it logged in with.
func NewAuthenticatedUser(u *users.User, sess *session.Session) *AuthenticatedUser {
	au := &AuthenticatedUser{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		Rules:    RoleRules(u.Role),
		Debug:    u.Debug,
	}
	if sess != nil {
		au.SessionID = sess.ID
		au.CSRFSecret = sess.CSRFSecret
	}
	return au
}

func (u *AuthenticatedUser) ID() string { return u.UserID }

func (u *AuthenticatedUser) Type() mvc.UserType { return UserTypeForRole(u.Role) }

func (u *AuthenticatedUser) DebugMode() bool { return u.Debug }

// CheckAccess reports whether the user's role grants rule.
func (u *AuthenticatedUser) CheckAccess(rule string) bool {
	for _, r := range u.Rules {
		if r == rule {
			return true
		}
	}
	return false
}

// CSRF returns the token helper bound to the user's session.
func (u *AuthenticatedUser) CSRF() *csrf.Helper {
	return csrf.New([]byte(u.CSRFSecret))
}
