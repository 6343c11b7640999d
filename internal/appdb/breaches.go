package appdb

import (
	"context"
	"fmt"
	"time"
)

// DismissBreach hides the breach warning for entryID in the database at
// dbPath. Dismissing twice keeps the first timestamp.
func (s *Store) DismissBreach(ctx context.Context, dbPath, entryID string, at time.Time) error {
	if err := checkBreachKey(dbPath, entryID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dismissed_breaches (db_path, entry_uuid, dismissed_at) VALUES (?, ?, ?)
		ON CONFLICT(db_path, entry_uuid) DO NOTHING
	`, dbPath, entryID, at.UnixNano())
	if err != nil {
		return fmt.Errorf("appdb: failed to dismiss breach: %w", err)
	}
	return nil
}

// DismissedBreaches returns the dismissed entry UUIDs for dbPath in the
// order they were dismissed.
func (s *Store) DismissedBreaches(ctx context.Context, dbPath string) ([]string, error) {
	if dbPath == "" {
		return nil, ErrEmptyPath
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_uuid FROM dismissed_breaches
		WHERE db_path = ? ORDER BY dismissed_at, entry_uuid
	`, dbPath)
	if err != nil {
		return nil, fmt.Errorf("appdb: failed to list dismissed breaches: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("appdb: failed to scan dismissed breach: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appdb: failed to iterate dismissed breaches: %w", err)
	}
	return out, nil
}

// ClearDismissedBreach shows the warning for entryID again.
func (s *Store) ClearDismissedBreach(ctx context.Context, dbPath, entryID string) error {
	if err := checkBreachKey(dbPath, entryID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM dismissed_breaches WHERE db_path = ? AND entry_uuid = ?
	`, dbPath, entryID)
	if err != nil {
		return fmt.Errorf("appdb: failed to clear dismissed breach: %w", err)
	}
	return nil
}

func checkBreachKey(dbPath, entryID string) error {
	if dbPath == "" {
		return ErrEmptyPath
	}
	if entryID == "" {
		return ErrEmptyEntryID
	}
	return nil
}
