package appdb

import (
	"context"
	"fmt"
	"time"
)

// Recent is a recently opened database.
type Recent struct {
	Path     string    `json:"path"`
	KeyFile  string    `json:"key_file,omitempty"`
	OpenedAt time.Time `json:"opened_at"`
}

// TouchRecent records that path was opened at openedAt and trims the list
// to the newest limit rows. limit <= 0 keeps everything.
func (s *Store) TouchRecent(ctx context.Context, path, keyFile string, openedAt time.Time, limit int) error {
	if path == "" {
		return ErrEmptyPath
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("appdb: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recent_databases (path, key_file, opened_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET key_file = excluded.key_file, opened_at = excluded.opened_at
	`, path, keyFile, openedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("appdb: failed to record recent database: %w", err)
	}

	if limit > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM recent_databases WHERE path NOT IN (
				SELECT path FROM recent_databases ORDER BY opened_at DESC, path LIMIT ?
			)
		`, limit)
		if err != nil {
			return fmt.Errorf("appdb: failed to trim recent databases: %w", err)
		}
	}
	return tx.Commit()
}

// RecentDatabases returns up to limit entries, newest first. limit <= 0
// returns all of them.
func (s *Store) RecentDatabases(ctx context.Context, limit int) ([]Recent, error) {
	query := `SELECT path, key_file, opened_at FROM recent_databases ORDER BY opened_at DESC, path`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appdb: failed to list recent databases: %w", err)
	}
	defer rows.Close()

	var out []Recent
	for rows.Next() {
		var r Recent
		var opened int64
		if err := rows.Scan(&r.Path, &r.KeyFile, &opened); err != nil {
			return nil, fmt.Errorf("appdb: failed to scan recent database: %w", err)
		}
		r.OpenedAt = time.Unix(0, opened).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appdb: failed to iterate recent databases: %w", err)
	}
	return out, nil
}

// ForgetRecent removes path from the list. Unknown paths are ignored.
func (s *Store) ForgetRecent(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recent_databases WHERE path = ?`, path); err != nil {
		return fmt.Errorf("appdb: failed to forget recent database: %w", err)
	}
	return nil
}
