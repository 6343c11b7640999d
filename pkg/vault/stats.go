package vault

import (
	"github.com/forest6511/simplepm/pkg/security"
)

// records snapshots the fields aggregation needs from every entry.
func (d *Database) records() []security.Record {
	var records []security.Record
	walkEntries(d.tree.Root, func(e *Entry, _ *Group) {
		r := security.Record{
			ID:       e.UUID.String(),
			Title:    e.Get(FieldTitle),
			Password: e.Get(FieldPassword),
			Modified: e.Times.Modified,
			Expires:  e.Times.Expires,
			Expiry:   e.Times.Expiry,
			Favorite: e.Favorite,
		}
		records = append(records, r)
	})
	return records
}

// Records returns an owned snapshot for analysis outside the lock, such as
// breach checks.
func (d *Database) Records() []security.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.records()
}

// DashboardStats recomputes the summary statistics from the live tree.
// The root group counts toward TotalGroups.
func (d *Database) DashboardStats() (security.DashboardStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calc.Dashboard(d.records(), countGroups(d.tree.Root))
}

// Report builds the detailed security report for the live tree.
func (d *Database) Report(includeIDs bool, limit int) (*security.Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calc.Report(d.records(), countGroups(d.tree.Root), includeIDs, limit)
}
