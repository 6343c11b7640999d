// Package appdb is the SQLite store for application state that lives
// outside any password database: recently opened files and dismissed
// breach warnings.
package appdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Pure Go SQLite driver, registered as "sqlite"
	_ "modernc.org/sqlite"
)

var (
	ErrEmptyPath    = errors.New("appdb: database path must not be empty")
	ErrEmptyEntryID = errors.New("appdb: entry UUID must not be empty")
)

// Store wraps the state database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the state database at path and migrates it to the
// current schema. Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("appdb: failed to open database: %w", err)
	}
	// One connection keeps :memory: stores coherent and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("appdb: failed to open database: %w", err)
	}
	if err := migrateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}
