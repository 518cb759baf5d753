// Package dbutil opens the SQL database behind the front end's stores.
// SQLite is the default; PostgreSQL and MySQL are selected by driver name.
package dbutil

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names accepted in configuration.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// DB is a database handle that rewrites "?" placeholders for the driver.
type DB struct {
	*sql.DB
	driver string
}

// Open connects to the database and applies per-driver session settings.
func Open(driver, dsn string) (*DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = DriverSQLite
	}

	// Map driver names to database/sql registered names
	var registered string
	switch driver {
	case DriverSQLite, "sqlite3":
		driver, registered = DriverSQLite, "sqlite"
	case DriverPostgres, "postgresql", "pgx":
		driver, registered = DriverPostgres, "pgx" // pgx/v5/stdlib registers as "pgx"
	case DriverMySQL:
		registered = "mysql"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s: dsn required", driver)
	}

	conn, err := sql.Open(registered, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	if driver == DriverSQLite {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set WAL: %w", err)
		}
		if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set busy_timeout: %w", err)
		}
	} else if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	return &DB{DB: conn, driver: driver}, nil
}

// Driver returns the normalised driver name.
func (db *DB) Driver() string { return db.driver }

// Rebind rewrites "?" placeholders to "$n" for PostgreSQL. Placeholders
// inside single-quoted literals are left alone.
func (db *DB) Rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Exec runs a statement with rebound placeholders.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	return db.DB.Exec(db.Rebind(query), args...)
}

// Query runs a query with rebound placeholders.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return db.DB.Query(db.Rebind(query), args...)
}

// QueryRow runs a single-row query with rebound placeholders.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	return db.DB.QueryRow(db.Rebind(query), args...)
}

// IsUniqueViolation reports whether err is a unique constraint failure on
// any supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
