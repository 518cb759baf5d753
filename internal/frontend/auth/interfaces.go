package auth

import (
	"github.com/marcus-qen/monfront/internal/frontend/session"
	"github.com/marcus-qen/monfront/internal/frontend/users"
)

// SessionCookieName is the browser cookie that carries the session token.
const SessionCookieName = "monfront_session"

// UserAuthenticator validates username/password credentials.
type UserAuthenticator interface {
	Authenticate(username, password string) (*users.User, error)
}

// UserLookup resolves the account behind a session.
type UserLookup interface {
	Get(id string) (*users.User, error)
}

// SessionCreator creates a new session for the user.
type SessionCreator interface {
	Create(userID string) (*session.Session, error)
}

// SessionValidator validates an existing session token.
type SessionValidator interface {
	Validate(token string) (*session.Session, error)
}

// SessionDeleter invalidates an existing session token.
type SessionDeleter interface {
	Delete(token string) error
}
