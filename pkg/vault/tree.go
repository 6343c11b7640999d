package vault

import (
	"github.com/google/uuid"
)

// All traversals are depth-first pre-order from the given group, visiting
// children in their stored order.

func findGroup(g *Group, id uuid.UUID) *Group {
	if g.UUID == id {
		return g
	}
	for _, n := range g.Children {
		if n.Group == nil {
			continue
		}
		if found := findGroup(n.Group, id); found != nil {
			return found
		}
	}
	return nil
}

// findEntry returns the entry and the group that owns it.
func findEntry(g *Group, id uuid.UUID) (*Entry, *Group) {
	for _, n := range g.Children {
		switch {
		case n.Entry != nil && n.Entry.UUID == id:
			return n.Entry, g
		case n.Group != nil:
			if e, owner := findEntry(n.Group, id); e != nil {
				return e, owner
			}
		}
	}
	return nil, nil
}

func findGroupParent(g *Group, id uuid.UUID) *Group {
	for _, n := range g.Children {
		if n.Group == nil {
			continue
		}
		if n.Group.UUID == id {
			return g
		}
		if found := findGroupParent(n.Group, id); found != nil {
			return found
		}
	}
	return nil
}

func walkEntries(g *Group, fn func(e *Entry, owner *Group)) {
	for _, n := range g.Children {
		switch {
		case n.Entry != nil:
			fn(n.Entry, g)
		case n.Group != nil:
			walkEntries(n.Group, fn)
		}
	}
}

func walkGroups(g *Group, fn func(*Group)) {
	fn(g)
	for _, n := range g.Children {
		if n.Group != nil {
			walkGroups(n.Group, fn)
		}
	}
}

func countGroups(g *Group) int {
	count := 0
	walkGroups(g, func(*Group) { count++ })
	return count
}

// childIndex returns the position of the group or entry id among g's
// direct children, or -1.
func childIndex(g *Group, id uuid.UUID, wantGroup bool) int {
	for i, n := range g.Children {
		if wantGroup && n.Group != nil && n.Group.UUID == id {
			return i
		}
		if !wantGroup && n.Entry != nil && n.Entry.UUID == id {
			return i
		}
	}
	return -1
}

func (g *Group) removeChild(i int) Node {
	n := g.Children[i]
	g.Children = append(g.Children[:i], g.Children[i+1:]...)
	return n
}

func (g *Group) insertChild(i int, n Node) {
	g.Children = append(g.Children, Node{})
	copy(g.Children[i+1:], g.Children[i:])
	g.Children[i] = n
}

// Lookups by string identifier. A malformed identifier is reported as
// not found.

func (d *Database) findGroup(id string) (*Group, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrGroupNotFound
	}
	g := findGroup(d.tree.Root, parsed)
	if g == nil {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

func (d *Database) findEntry(id string) (*Entry, *Group, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, nil, ErrEntryNotFound
	}
	e, owner := findEntry(d.tree.Root, parsed)
	if e == nil {
		return nil, nil, ErrEntryNotFound
	}
	return e, owner, nil
}

func (d *Database) groupParent(id string) (*Group, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrGroupNotFound
	}
	p := findGroupParent(d.tree.Root, parsed)
	if p == nil {
		return nil, ErrGroupNotFound
	}
	return p, nil
}

func (d *Database) entryGroup(id string) (*Group, error) {
	_, owner, err := d.findEntry(id)
	return owner, err
}

func (d *Database) isRoot(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed == d.tree.Root.UUID
}
