package users

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/marcus-qen/monfront/internal/frontend/dbutil"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := dbutil.Open(dbutil.DriverSQLite, filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestCreateGetAndGetByUsername(t *testing.T) {
	store := newStore(t)

	created, err := store.Create("alice", "Alice", "secret123", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if created.PasswordHash == "" {
		t.Fatal("expected password hash to be set")
	}
	if created.PasswordHash == "secret123" {
		t.Fatal("password should be hashed")
	}

	byID, err := store.Get(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if byID.Username != "alice" || byID.Role != RoleAdmin || !byID.Enabled || byID.Debug {
		t.Fatalf("unexpected user: %+v", byID)
	}

	byUsername, err := store.GetByUsername("alice")
	if err != nil {
		t.Fatal(err)
	}
	if byUsername.ID != created.ID {
		t.Fatalf("expected same user ID, got %s want %s", byUsername.ID, created.ID)
	}

	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 user, got %d", len(list))
	}

	if _, err := store.Get("missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	store := newStore(t)

	if _, err := store.Create("bob", "Bob", "pw", "operator"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if _, err := store.Create("  ", "Nobody", "pw", RoleUser); err == nil {
		t.Fatal("expected error for blank username")
	}
}

func TestDuplicateUsernameRejected(t *testing.T) {
	store := newStore(t)

	if _, err := store.Create("alice", "Alice", "pw1", RoleUser); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create("alice", "Alice 2", "pw2", RoleUser); !errors.Is(err, ErrUsernameAlreadyUsed) {
		t.Fatalf("expected duplicate username error, got %v", err)
	}
}

func TestAuthenticateCorrectAndWrongPassword(t *testing.T) {
	store := newStore(t)

	if _, err := store.Create("alice", "Alice", "correct-horse", RoleUser); err != nil {
		t.Fatal(err)
	}

	u, err := store.Authenticate("alice", "correct-horse")
	if err != nil {
		t.Fatalf("expected successful auth, got %v", err)
	}
	if u.LastLogin == nil {
		t.Fatal("expected last_login to be set")
	}

	if _, err := store.Authenticate("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := store.Authenticate("nobody", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestAuthenticateDisabledUserRejected(t *testing.T) {
	store := newStore(t)

	u, err := store.Create("alice", "Alice", "pw", RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetEnabled(u.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Authenticate("alice", "pw"); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestUpdatePasswordRoleDebug(t *testing.T) {
	store := newStore(t)

	u, err := store.Create("alice", "Alice", "old", RoleUser)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.UpdatePassword(u.ID, "new"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Authenticate("alice", "new"); err != nil {
		t.Fatalf("expected new password to work, got %v", err)
	}

	if err := store.UpdateRole(u.ID, RoleSuperAdmin); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateRole(u.ID, "root"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}
	if err := store.SetDebug(u.ID, true); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Role != RoleSuperAdmin || !got.Debug {
		t.Fatalf("unexpected user after updates: %+v", got)
	}

	if err := store.UpdatePassword("missing", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	store := newStore(t)

	u, err := store.Create("alice", "Alice", "pw", RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(u.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestEnsureAdmin(t *testing.T) {
	store := newStore(t)

	if _, err := store.EnsureAdmin("", ""); err == nil {
		t.Fatal("expected error without credentials on empty store")
	}

	created, err := store.EnsureAdmin("admin", "changeme")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected bootstrap admin to be created")
	}
	u, err := store.GetByUsername("admin")
	if err != nil {
		t.Fatal(err)
	}
	if u.Role != RoleSuperAdmin {
		t.Fatalf("expected super admin, got %s", u.Role)
	}

	created, err = store.EnsureAdmin("other", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if created || store.Count() != 1 {
		t.Fatal("bootstrap must not run on a non-empty store")
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleUser, RoleAdmin, RoleSuperAdmin} {
		if !ValidRole(role) {
			t.Errorf("%s should be valid", role)
		}
	}
	for _, role := range []string{"guest", "", "Admin"} {
		if ValidRole(role) {
			t.Errorf("%q should be rejected", role)
		}
	}
}
