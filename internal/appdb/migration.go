package appdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Schema version constants
const (
	// SchemaVersion1 stores recently opened databases
	SchemaVersion1 = 1
	// SchemaVersion2 adds dismissed breach warnings
	SchemaVersion2 = 2
	// SchemaVersion3 remembers the key file used with a recent database
	SchemaVersion3 = 3
	// CurrentSchemaVersion is the current schema version
	CurrentSchemaVersion = SchemaVersion3
)

// getSchemaVersion returns the stored schema version, or 0 for a fresh
// database.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var name string
	err := db.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("appdb: failed to check schema_version table: %w", err)
	}

	var version int
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("appdb: failed to get schema version: %w", err)
	}
	return version, nil
}

// setSchemaVersion records version inside tx.
func setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			migrated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

var migrations = []struct {
	version int
	apply   func(context.Context, *sql.Tx) error
}{
	{SchemaVersion1, migrateToV1},
	{SchemaVersion2, migrateToV2},
	{SchemaVersion3, migrateToV3},
}

// migrateSchema applies every migration newer than the stored version,
// each in its own transaction.
func migrateSchema(ctx context.Context, db *sql.DB) error {
	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		if err := runMigration(ctx, db, m.version, m.apply); err != nil {
			return fmt.Errorf("appdb: migration to v%d failed: %w", m.version, err)
		}
	}
	return nil
}

func runMigration(ctx context.Context, db *sql.DB, version int, apply func(context.Context, *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := apply(ctx, tx); err != nil {
		return err
	}
	if err := setSchemaVersion(ctx, tx, version); err != nil {
		return err
	}
	return tx.Commit()
}

func migrateToV1(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS recent_databases (
			path      TEXT PRIMARY KEY,
			opened_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create recent_databases table: %w", err)
	}
	return nil
}

func migrateToV2(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS dismissed_breaches (
			db_path      TEXT NOT NULL,
			entry_uuid   TEXT NOT NULL,
			dismissed_at INTEGER NOT NULL,
			PRIMARY KEY (db_path, entry_uuid)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create dismissed_breaches table: %w", err)
	}
	return nil
}

// migrateToV3 adds recent_databases.key_file. The column check keeps the
// migration idempotent if a previous attempt was interrupted.
func migrateToV3(ctx context.Context, tx *sql.Tx) error {
	columns, err := getTableColumns(ctx, tx, "recent_databases")
	if err != nil {
		return err
	}
	if columns["key_file"] {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "ALTER TABLE recent_databases ADD COLUMN key_file TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("failed to add key_file column: %w", err)
	}
	return nil
}

// getTableColumns returns the set of column names of tableName.
func getTableColumns(ctx context.Context, tx *sql.Tx, tableName string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
