package users

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcus-qen/monfront/internal/frontend/dbutil"
	"golang.org/x/crypto/bcrypt"
)

// Roles, lowest privilege first.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserDisabled        = errors.New("user disabled")
	ErrUsernameAlreadyUsed = errors.New("username already exists")
)

// User is a front end user account.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	Enabled      bool       `json:"enabled"`
	Debug        bool       `json:"debug_mode"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// Store manages user accounts.
type Store struct {
	db *dbutil.DB
}

const userColumns = `id, username, display_name, password_hash, role, enabled, debug_mode, created_at, last_login`

// NewStore creates the users table when missing.
func NewStore(db *dbutil.DB) (*Store, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id            VARCHAR(64) PRIMARY KEY,
		username      VARCHAR(100) NOT NULL UNIQUE,
		display_name  VARCHAR(255) NOT NULL,
		password_hash VARCHAR(100) NOT NULL,
		role          VARCHAR(20) NOT NULL CHECK (role IN ('user', 'admin', 'super_admin')),
		enabled       INTEGER NOT NULL DEFAULT 1,
		debug_mode    INTEGER NOT NULL DEFAULT 0,
		created_at    VARCHAR(40) NOT NULL,
		last_login    VARCHAR(40)
	)`); err != nil {
		return nil, fmt.Errorf("create users table: %w", err)
	}

	return &Store{db: db}, nil
}

// Create creates a new user with a generated UUID ID and bcrypt password hash.
func (s *Store) Create(username, displayName, password, role string) (*User, error) {
	if !ValidRole(role) {
		return nil, ErrInvalidRole
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = s.db.Exec(`INSERT INTO users (id, username, display_name, password_hash, role, enabled, debug_mode, created_at)
		VALUES (?, ?, ?, ?, ?, 1, 0, ?)`,
		u.ID, u.Username, u.DisplayName, u.PasswordHash, u.Role, u.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if dbutil.IsUniqueViolation(err) {
			return nil, ErrUsernameAlreadyUsed
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return u, nil
}

// EnsureAdmin creates a super admin account when the store is empty.
// It reports whether an account was created.
func (s *Store) EnsureAdmin(username, password string) (bool, error) {
	if s.Count() > 0 {
		return false, nil
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return false, fmt.Errorf("bootstrap admin credentials required")
	}
	if _, err := s.Create(username, "Administrator", password, RoleSuperAdmin); err != nil {
		return false, err
	}
	return true, nil
}

// Get fetches a user by ID.
func (s *Store) Get(id string) (*User, error) {
	return scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetByUsername fetches a user by username.
func (s *Store) GetByUsername(username string) (*User, error) {
	return scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// List returns all users.
func (s *Store) List() ([]User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC, username ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users rows: %w", err)
	}

	return users, nil
}

// UpdatePassword updates a user's password hash.
func (s *Store) UpdatePassword(id, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	res, err := s.db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, string(hash), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return checkRowsAffected(res, ErrUserNotFound)
}

// UpdateRole updates a user's role.
func (s *Store) UpdateRole(id, role string) error {
	if !ValidRole(role) {
		return ErrInvalidRole
	}

	res, err := s.db.Exec(`UPDATE users SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	return checkRowsAffected(res, ErrUserNotFound)
}

// SetEnabled enables/disables a user account.
func (s *Store) SetEnabled(id string, enabled bool) error {
	res, err := s.db.Exec(`UPDATE users SET enabled = ? WHERE id = ?`, boolInt(enabled), id)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}

	return checkRowsAffected(res, ErrUserNotFound)
}

// SetDebug toggles debug mode, which adds diagnostics to responses.
func (s *Store) SetDebug(id string, debug bool) error {
	res, err := s.db.Exec(`UPDATE users SET debug_mode = ? WHERE id = ?`, boolInt(debug), id)
	if err != nil {
		return fmt.Errorf("set debug mode: %w", err)
	}

	return checkRowsAffected(res, ErrUserNotFound)
}

// Delete permanently removes a user.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	return checkRowsAffected(res, ErrUserNotFound)
}

// Authenticate checks username/password and updates last_login.
func (s *Store) Authenticate(username, password string) (*User, error) {
	u, err := s.GetByUsername(username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !u.Enabled {
		return nil, ErrUserDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if _, err := s.db.Exec(`UPDATE users SET last_login = ? WHERE id = ?`, now.Format(time.RFC3339Nano), u.ID); err != nil {
		return nil, fmt.Errorf("update last_login: %w", err)
	}

	u.LastLogin = &now
	return u, nil
}

// Count returns total number of users.
func (s *Store) Count() int {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0
	}
	return count
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var (
		u                    User
		enabled, debug       int
		createdAt, lastLogin sql.NullString
	)

	if err := s.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role, &enabled, &debug, &createdAt, &lastLogin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.Enabled = enabled == 1
	u.Debug = debug == 1
	if createdAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, createdAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		u.CreatedAt = t
	}
	if lastLogin.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastLogin.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_login: %w", err)
		}
		u.LastLogin = &t
	}

	return &u, nil
}

func checkRowsAffected(res sql.Result, errWhenZero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errWhenZero
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ValidRole reports whether role is a known role.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}
