package app

import (
	"context"
	"errors"

	"github.com/forest6511/simplepm/internal/appdb"
	"github.com/forest6511/simplepm/pkg/security"
	"github.com/forest6511/simplepm/pkg/vault"
)

// ErrNoState is returned by state operations when no state store is
// configured.
var ErrNoState = errors.New("app: application state is not available")

// RecentDatabases lists recently opened databases, newest first.
func (a *App) RecentDatabases(ctx context.Context) ([]appdb.Recent, error) {
	if a.state == nil {
		return nil, ErrNoState
	}
	return a.state.RecentDatabases(ctx, a.cfg.RecentLimit)
}

// DismissBreach hides the breach warning of an entry in the open database.
func (a *App) DismissBreach(ctx context.Context, entryID string) error {
	return a.withState(func(path string) error {
		if _, err := a.db.Entry(entryID); err != nil {
			return err
		}
		return a.state.DismissBreach(ctx, path, entryID, a.now())
	})
}

// ClearDismissedBreach shows the breach warning of an entry again.
func (a *App) ClearDismissedBreach(ctx context.Context, entryID string) error {
	return a.withState(func(path string) error {
		return a.state.ClearDismissedBreach(ctx, path, entryID)
	})
}

// DismissedBreaches lists the dismissed entry UUIDs of the open database.
func (a *App) DismissedBreaches(ctx context.Context) ([]string, error) {
	var ids []string
	err := a.withState(func(path string) error {
		var err error
		ids, err = a.state.DismissedBreaches(ctx, path)
		return err
	})
	return ids, err
}

// BreachPlan snapshots the open database and groups its passwords into
// range-query batches. Dismissed entries are left out.
func (a *App) BreachPlan(ctx context.Context) ([]security.BreachBatch, error) {
	var records []security.Record
	err := a.guard(func() error {
		if a.db == nil {
			return vault.ErrNotLoaded
		}
		records = a.db.Records()
		if a.state == nil {
			return nil
		}
		dismissed, err := a.state.DismissedBreaches(ctx, a.db.Path())
		if err != nil {
			return err
		}
		skip := make(map[string]bool, len(dismissed))
		for _, id := range dismissed {
			skip[id] = true
		}
		kept := records[:0]
		for _, r := range records {
			if !skip[r.ID] {
				kept = append(kept, r)
			}
		}
		records = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Hashing runs after the state lock is released
	return security.BreachBatches(records), nil
}

func (a *App) withState(fn func(path string) error) error {
	if a.state == nil {
		return ErrNoState
	}
	return a.guard(func() error {
		if a.db == nil {
			return vault.ErrNotLoaded
		}
		return fn(a.db.Path())
	})
}
