package dbutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

func tempDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenSQLite(t *testing.T) {
	db := tempDB(t)
	if db.Driver() != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %s", db.Driver())
	}
	if _, err := db.Exec(`CREATE TABLE kv (k VARCHAR(64) PRIMARY KEY, v TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO kv (k, v) VALUES (?, ?)`, "a", "1"); err != nil {
		t.Fatal(err)
	}
	var v string
	if err := db.QueryRow(`SELECT v FROM kv WHERE k = ?`, "a").Scan(&v); err != nil {
		t.Fatal(err)
	}
	if v != "1" {
		t.Fatalf("expected 1, got %q", v)
	}

	_, err := db.Exec(`INSERT INTO kv (k, v) VALUES (?, ?)`, "a", "2")
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := Open(DriverSQLite, ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	got := pg.Rebind(`SELECT * FROM t WHERE a = ? AND b = '?' AND c IN (?, ?)`)
	want := `SELECT * FROM t WHERE a = $1 AND b = '?' AND c IN ($2, $3)`
	if got != want {
		t.Fatalf("unexpected rebind:\n got %s\nwant %s", got, want)
	}

	my := &DB{driver: DriverMySQL}
	if q := `SELECT ?`; my.Rebind(q) != q {
		t.Fatal("mysql queries must be left unchanged")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{&pgconn.PgError{Code: "23503"}, false},
		{fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}), true},
		{&mysql.MySQLError{Number: 1045}, false},
		{fmt.Errorf("other"), false},
	}
	for i, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}
