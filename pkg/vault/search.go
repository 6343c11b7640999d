package vault

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// Search returns entries whose title, username, URL, notes or tags contain
// query, compared case-insensitively. When scopeID is non-empty only entries
// in that group or its descendants are considered. Results are in tree
// pre-order; there is no ranking.
func (d *Database) Search(query, scopeID string) ([]EntryData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var scope map[uuid.UUID]bool
	if scopeID != "" {
		g, err := d.findGroup(scopeID)
		if err != nil {
			return nil, err
		}
		scope = make(map[uuid.UUID]bool)
		walkGroups(g, func(sub *Group) { scope[sub.UUID] = true })
	}

	fold := cases.Fold()
	needle := fold.String(query)

	return d.collectEntries(d.tree.Root, func(e *Entry, owner *Group) bool {
		if scope != nil && !scope[owner.UUID] {
			return false
		}
		for _, key := range []string{FieldTitle, FieldUserName, FieldURL, FieldNotes, FieldTags} {
			if strings.Contains(fold.String(e.Get(key)), needle) {
				return true
			}
		}
		return false
	}), nil
}
