package vault

import (
	"strings"

	"github.com/google/uuid"
)

// RootGroup returns the group tree without entries.
func (d *Database) RootGroup() GroupData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return groupData(d.tree.Root, nil)
}

// Group returns one group and its subgroups.
func (d *Database) Group(id string) (GroupData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, err := d.findGroup(id)
	if err != nil {
		return GroupData{}, err
	}
	var parent *uuid.UUID
	if p := findGroupParent(d.tree.Root, g.UUID); p != nil {
		parent = &p.UUID
	}
	return groupData(g, parent), nil
}

// CreateGroup appends a new group to parentID, or to the root group when
// parentID is empty, and returns its UUID.
func (d *Database) CreateGroup(name, parentID string, iconID *int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	parent := d.tree.Root
	if parentID != "" {
		var err error
		if parent, err = d.findGroup(parentID); err != nil {
			return "", err
		}
	}

	now := d.now()
	g := &Group{
		UUID:   uuid.New(),
		Name:   name,
		IconID: cloneInt(iconID),
		Times:  Times{Created: now, Modified: now, Accessed: now},
	}
	parent.Children = append(parent.Children, Node{Group: g})
	return g.UUID.String(), nil
}

// RenameGroup sets a group's name, and its icon when iconID is non-nil.
func (d *Database) RenameGroup(id, name string, iconID *int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, err := d.findGroup(id)
	if err != nil {
		return err
	}
	g.Name = name
	if iconID != nil {
		g.IconID = cloneInt(iconID)
	}
	g.Times.Modified = d.stamp(g.Times.Modified)
	return nil
}

// DeleteGroup removes a group and everything below it. The root group
// cannot be deleted.
func (d *Database) DeleteGroup(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRoot(id) {
		return ErrGroupNotFound
	}
	parent, err := d.groupParent(id)
	if err != nil {
		return err
	}

	g := parent.removeChild(childIndex(parent, uuid.MustParse(id), true)).Group
	walkEntries(g, func(e *Entry, _ *Group) { e.wipe() })
	return nil
}

// MoveGroup appends a group to a new parent. The root group cannot be moved
// and a group cannot be moved into itself or any of its descendants.
func (d *Database) MoveGroup(id, parentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRoot(id) {
		return ErrGroupNotFound
	}
	oldParent, err := d.groupParent(id)
	if err != nil {
		return err
	}
	target, err := d.findGroup(parentID)
	if err != nil {
		return err
	}

	idx := childIndex(oldParent, uuid.MustParse(id), true)
	g := oldParent.Children[idx].Group
	if findGroup(g, target.UUID) != nil {
		return ErrGroupNotFound
	}

	n := oldParent.removeChild(idx)
	target.Children = append(target.Children, n)
	return nil
}

// ReorderGroup moves a group to targetIndex within its parent's children.
// Indexes past the end clamp to the last position.
func (d *Database) ReorderGroup(id string, targetIndex int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRoot(id) {
		return ErrGroupNotFound
	}
	parent, err := d.groupParent(id)
	if err != nil {
		return err
	}

	current := childIndex(parent, uuid.MustParse(id), true)
	target := targetIndex
	if target > current {
		target = min(target, len(parent.Children)-1)
	}
	if target < 0 {
		target = 0
	}

	if target != current {
		n := parent.removeChild(current)
		parent.insertChild(target, n)
	}
	return nil
}

// GroupPath returns the names from the root's child down to the group,
// joined by sep. The root group has an empty path.
func (d *Database) GroupPath(id, sep string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, err := d.findGroup(id)
	if err != nil {
		return "", err
	}

	var names []string
	for g != d.tree.Root {
		names = append([]string{g.Name}, names...)
		g = findGroupParent(d.tree.Root, g.UUID)
	}

	return strings.Join(names, sep), nil
}
