package app

import (
	"github.com/forest6511/simplepm/pkg/audit"
	"github.com/forest6511/simplepm/pkg/crypto"
	"github.com/forest6511/simplepm/pkg/importer"
	"github.com/forest6511/simplepm/pkg/secret"
	"github.com/forest6511/simplepm/pkg/security"
	"github.com/forest6511/simplepm/pkg/vault"
)

// View runs fn against the open database. Nothing is saved.
func (a *App) View(fn func(db *vault.Database) error) error {
	return a.guard(func() error {
		if a.db == nil {
			return vault.ErrNotLoaded
		}
		return fn(a.db)
	})
}

// Query runs fn against the open database and returns its result.
func Query[T any](a *App, fn func(db *vault.Database) (T, error)) (T, error) {
	var out T
	err := a.View(func(db *vault.Database) error {
		var err error
		out, err = fn(db)
		return err
	})
	return out, err
}

// Update runs a mutation and saves the database. Changes made to the file
// by another process since the last open, save or merge are merged in
// before fn runs, so the save never discards them. fn returns the audit
// target, usually the affected entry or group UUID.
func (a *App) Update(op string, fn func(db *vault.Database) (string, error)) error {
	return a.guard(func() error {
		if a.db == nil {
			return vault.ErrNotLoaded
		}
		if err := a.mergeExternal(); err != nil {
			return err
		}

		target, err := fn(a.db)
		if err == nil {
			err = a.db.Save()
		}
		if err != nil {
			a.log.Debug("update failed", "op", op, "target", target, "err", err)
		}
		a.record(op, target, err)
		return err
	})
}

func (a *App) mergeExternal() error {
	changed, err := a.db.CheckForChanges()
	if err != nil || !changed {
		return err
	}
	return a.merge()
}

func (a *App) merge() error {
	err := a.db.Merge()
	a.record(audit.OpDatabaseMerge, "", err)
	if err != nil {
		a.log.Error("merge failed", "path", a.db.Path(), "err", err)
		return err
	}
	a.log.Info("merged external changes", "path", a.db.Path())
	return nil
}

// CheckForChanges reports whether the file changed on disk since the last
// open, save or merge.
func (a *App) CheckForChanges() (bool, error) {
	return Query(a, func(db *vault.Database) (bool, error) {
		return db.CheckForChanges()
	})
}

// Merge reconciles the open database with the file on disk without saving.
func (a *App) Merge() error {
	return a.guard(func() error {
		if a.db == nil {
			return vault.ErrNotLoaded
		}
		return a.merge()
	})
}

// Save writes the open database.
func (a *App) Save() error {
	return a.Update(audit.OpDatabaseSave, func(*vault.Database) (string, error) {
		return "", nil
	})
}

// SaveAs writes the open database to path, which becomes its file.
func (a *App) SaveAs(path string) error {
	return a.guard(func() error {
		if a.db == nil {
			return vault.ErrNotLoaded
		}
		err := a.db.SaveAs(path)
		a.record(audit.OpDatabaseSave, "", err)
		return err
	})
}

// ChangeCredential replaces the master password and saves.
func (a *App) ChangeCredential(password secret.String) error {
	return a.guard(func() error {
		if a.db == nil {
			return vault.ErrNotLoaded
		}
		err := a.db.ChangeCredential(password)
		a.record(audit.OpCredentialChange, "", err)
		return err
	})
}

// UpgradeKDF switches to the default Argon2id parameters and saves.
func (a *App) UpgradeKDF() error {
	return a.SetKDF(crypto.DefaultKDF())
}

// SetKDF replaces the key derivation parameters and saves.
func (a *App) SetKDF(p crypto.KDFParams) error {
	return a.guard(func() error {
		if a.db == nil {
			return vault.ErrNotLoaded
		}
		err := a.db.SetKDF(p)
		a.record(audit.OpKDFChange, "", err)
		return err
	})
}

// CreateEntry adds an entry and returns its UUID.
func (a *App) CreateEntry(data vault.EntryData) (string, error) {
	var id string
	err := a.Update(audit.OpEntryCreate, func(db *vault.Database) (string, error) {
		var err error
		id, err = db.CreateEntry(data)
		return id, err
	})
	return id, err
}

// EditEntry applies patch to an entry and saves the result. The entry is
// read after external changes are merged, so fields patch does not touch
// keep their newest values. It returns the entry as saved.
func (a *App) EditEntry(id string, patch func(data *vault.EntryData) error) (vault.EntryData, error) {
	var out vault.EntryData
	err := a.Update(audit.OpEntryUpdate, func(db *vault.Database) (string, error) {
		data, err := db.Entry(id)
		if err != nil {
			return id, err
		}
		if err := patch(&data); err != nil {
			return id, err
		}
		if err := db.UpdateEntry(data); err != nil {
			return id, err
		}
		out, err = db.Entry(id)
		return id, err
	})
	return out, err
}

// DeleteEntry removes an entry.
func (a *App) DeleteEntry(id string) error {
	return a.Update(audit.OpEntryDelete, func(db *vault.Database) (string, error) {
		return id, db.DeleteEntry(id)
	})
}

// MoveEntry moves an entry to another group.
func (a *App) MoveEntry(id, groupID string) error {
	return a.Update(audit.OpEntryMove, func(db *vault.Database) (string, error) {
		return id, db.MoveEntry(id, groupID)
	})
}

// TouchEntry records a use of an entry, such as copying its password.
func (a *App) TouchEntry(id string) error {
	return a.Update(audit.OpEntryCopy, func(db *vault.Database) (string, error) {
		return id, db.TouchEntry(id)
	})
}

// CreateGroup adds a group and returns its UUID.
func (a *App) CreateGroup(name, parentID string, iconID *int) (string, error) {
	var id string
	err := a.Update(audit.OpGroupCreate, func(db *vault.Database) (string, error) {
		var err error
		id, err = db.CreateGroup(name, parentID, iconID)
		return id, err
	})
	return id, err
}

// RenameGroup changes a group's name and icon.
func (a *App) RenameGroup(id, name string, iconID *int) error {
	return a.Update(audit.OpGroupRename, func(db *vault.Database) (string, error) {
		return id, db.RenameGroup(id, name, iconID)
	})
}

// DeleteGroup removes a group and everything below it.
func (a *App) DeleteGroup(id string) error {
	return a.Update(audit.OpGroupDelete, func(db *vault.Database) (string, error) {
		return id, db.DeleteGroup(id)
	})
}

// MoveGroup moves a group under another parent.
func (a *App) MoveGroup(id, parentID string) error {
	return a.Update(audit.OpGroupMove, func(db *vault.Database) (string, error) {
		return id, db.MoveGroup(id, parentID)
	})
}

// ReorderGroup moves a group to index among its siblings.
func (a *App) ReorderGroup(id string, index int) error {
	return a.Update(audit.OpGroupReorder, func(db *vault.Database) (string, error) {
		return id, db.ReorderGroup(id, index)
	})
}

// AddAttachment stores data under key on an entry.
func (a *App) AddAttachment(entryID, key string, data []byte) error {
	return a.Update(audit.OpAttachmentAdd, func(db *vault.Database) (string, error) {
		return entryID, db.AddAttachment(entryID, key, data)
	})
}

// DeleteAttachment removes key from an entry.
func (a *App) DeleteAttachment(entryID, key string) error {
	return a.Update(audit.OpAttachmentDelete, func(db *vault.Database) (string, error) {
		return entryID, db.DeleteAttachment(entryID, key)
	})
}

// Import creates the parsed entries below the root group and saves.
func (a *App) Import(result *importer.ImportResult) (*importer.ApplyResult, error) {
	var out *importer.ApplyResult
	err := a.Update(audit.OpImport, func(db *vault.Database) (string, error) {
		var err error
		out, err = importer.Apply(db, db.RootGroup().UUID, result)
		return "", err
	})
	return out, err
}

// Stats is the dashboard summary with its health score.
type Stats struct {
	security.DashboardStats
	HealthScore int `json:"health_score"`
}

// Stats recomputes the dashboard statistics.
func (a *App) Stats() (Stats, error) {
	return Query(a, func(db *vault.Database) (Stats, error) {
		s, err := db.DashboardStats()
		if err != nil {
			return Stats{}, err
		}
		return Stats{DashboardStats: s, HealthScore: s.HealthScore()}, nil
	})
}
