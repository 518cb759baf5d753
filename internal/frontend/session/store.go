package session

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/marcus-qen/monfront/internal/frontend/dbutil"
)

const DefaultSessionLifetime = 24 * time.Hour

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session is an authenticated user session. CSRFSecret keys the session's
// CSRF tokens and never leaves the server.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CSRFSecret string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastActive time.Time `json:"last_active"`
}

// Store manages sessions in the front end database.
type Store struct {
	db       *dbutil.DB
	lifetime time.Duration
	now      func() time.Time
}

// NewStore creates the sessions table when missing.
func NewStore(db *dbutil.DB, sessionLifetime time.Duration) (*Store, error) {
	if sessionLifetime <= 0 {
		sessionLifetime = DefaultSessionLifetime
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id          VARCHAR(64) PRIMARY KEY,
		user_id     VARCHAR(64) NOT NULL,
		csrf_secret VARCHAR(64) NOT NULL,
		created_at  VARCHAR(40) NOT NULL,
		expires_at  VARCHAR(40) NOT NULL,
		last_active VARCHAR(40) NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	// MySQL has no IF NOT EXISTS for indexes; a duplicate index error is fine.
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at)`)

	return &Store{db: db, lifetime: sessionLifetime, now: time.Now}, nil
}

// Lifetime returns the configured session lifetime.
func (s *Store) Lifetime() time.Duration { return s.lifetime }

// Create creates a new session for a user.
func (s *Store) Create(userID string) (*Session, error) {
	token, err := generateToken(32)
	if err != nil {
		return nil, err
	}
	secret, err := generateToken(32)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := &Session{
		ID:         token,
		UserID:     userID,
		CSRFSecret: secret,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.lifetime),
		LastActive: now,
	}

	_, err = s.db.Exec(`INSERT INTO sessions (id, user_id, csrf_secret, created_at, expires_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.UserID,
		sess.CSRFSecret,
		formatTime(sess.CreatedAt),
		formatTime(sess.ExpiresAt),
		formatTime(sess.LastActive),
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return sess, nil
}

// Validate validates a session token, checks expiry, and refreshes last_active.
func (s *Store) Validate(token string) (*Session, error) {
	sess, err := s.get(token)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if now.After(sess.ExpiresAt) {
		_, _ = s.db.Exec(`DELETE FROM sessions WHERE id = ?`, token)
		return nil, ErrSessionExpired
	}

	if _, err := s.db.Exec(`UPDATE sessions SET last_active = ? WHERE id = ?`, formatTime(now), token); err != nil {
		return nil, fmt.Errorf("update last_active: %w", err)
	}

	sess.LastActive = now
	return sess, nil
}

// Delete deletes a session by token.
func (s *Store) Delete(token string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteByUser deletes all sessions for a user.
func (s *Store) DeleteByUser(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete sessions by user: %w", err)
	}
	return nil
}

// Cleanup deletes expired sessions and returns deleted row count.
func (s *Store) Cleanup() (int, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, formatTime(s.now().UTC()))
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rows affected: %w", err)
	}

	return int(n), nil
}

func (s *Store) get(token string) (*Session, error) {
	var (
		sess       Session
		createdAt  string
		expiresAt  string
		lastActive string
	)

	err := s.db.QueryRow(`SELECT id, user_id, csrf_secret, created_at, expires_at, last_active FROM sessions WHERE id = ?`, token).Scan(
		&sess.ID, &sess.UserID, &sess.CSRFSecret, &createdAt, &expiresAt, &lastActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	sess.ExpiresAt, err = time.Parse(timeLayout, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	sess.LastActive, err = time.Parse(timeLayout, lastActive)
	if err != nil {
		return nil, fmt.Errorf("parse last_active: %w", err)
	}

	return &sess, nil
}

// Fixed-width so that string comparison in Cleanup orders correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func generateToken(size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
