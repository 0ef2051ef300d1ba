// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite. No CGo, no C compiler, and
// cross-compilation works like any other Go package.
//
// DATABASE/SQL OVERVIEW:
// Go's standard library provides "database/sql", a generic interface over
// drivers. Key types:
//   - sql.DB      is a connection pool (NOT a single connection!)
//   - sql.Tx      is a transaction
//   - sql.Row     is a single result row
//   - sql.Rows    is multiple result rows (must be closed!)
//
// SCHEMA:
// Tables are created by goose migrations embedded from migrations/*.sql.
// goose records applied versions in goose_db_version, so New can run on
// every start without re-applying anything.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its filesystem and dialect in package globals.
var gooseMu sync.Mutex

// MemoryPath selects a private in-memory database.
const MemoryPath = ":memory:"

// DB wraps a sql.DB connection pool and implements the repository
// interfaces (UserRepository, ProjectRepository).
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and migrates it to the latest schema.
//
// dbPath examples:
//   - "data/issuedesk.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests, lost on close)
//
// PRAGMAS:
// foreign_keys and busy_timeout are per-connection settings, so they go in
// the DSN where the driver applies them to every connection the pool opens.
// WAL is a property of the database file and only matters on disk.
func New(ctx context.Context, dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a brand new, empty database.
	// Pin the pool to one connection so all queries see the same data.
	if dbPath == MemoryPath {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(dbPath string) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if dbPath != MemoryPath {
		params += "&_pragma=journal_mode(WAL)"
	}
	return dbPath + "?" + params
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
	}()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.conn, "migrations"); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
