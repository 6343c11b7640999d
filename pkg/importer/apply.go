package importer

import (
	"fmt"

	"github.com/forest6511/simplepm/pkg/vault"
)

// ApplyResult summarizes what Apply changed.
type ApplyResult struct {
	EntriesCreated int
	GroupsCreated  int
	EntryIDs       []string
}

// Apply creates the parsed entries below rootID, creating folder groups as
// needed. A folder that already exists under the same parent with the same
// name is reused. On error, entries created so far remain in the database.
func Apply(db *vault.Database, rootID string, result *ImportResult) (*ApplyResult, error) {
	root, err := db.Group(rootID)
	if err != nil {
		return nil, err
	}

	out := &ApplyResult{}
	cache := map[string]string{"": root.UUID}

	for _, e := range result.Entries {
		groupID := root.UUID
		key := ""
		for _, name := range e.GroupPath {
			parentID := groupID
			key += "/" + name
			if id, ok := cache[key]; ok {
				groupID = id
				continue
			}

			groupID, err = findOrCreateGroup(db, parentID, name, out)
			if err != nil {
				return out, fmt.Errorf("failed to create group %q: %w", key, err)
			}
			cache[key] = groupID
		}

		id, err := db.CreateEntry(e.EntryData(groupID))
		if err != nil {
			return out, fmt.Errorf("failed to create entry %q: %w", e.Title, err)
		}
		out.EntriesCreated++
		out.EntryIDs = append(out.EntryIDs, id)
	}
	return out, nil
}

func findOrCreateGroup(db *vault.Database, parentID, name string, out *ApplyResult) (string, error) {
	parent, err := db.Group(parentID)
	if err != nil {
		return "", err
	}
	for _, child := range parent.Children {
		if child.Name == name {
			return child.UUID, nil
		}
	}

	id, err := db.CreateGroup(name, parentID, nil)
	if err != nil {
		return "", err
	}
	out.GroupsCreated++
	return id, nil
}
