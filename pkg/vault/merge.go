package vault

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Merge re-reads the backing file and folds it into the in-memory tree.
//
// Groups are matched by UUID and merged recursively from the roots. An entry
// or group that only exists on disk is adopted at the position it has on
// disk. When both sides hold the same entry, the disk copy replaces the
// in-memory one only if its modification time is strictly later. Nothing is
// ever deleted, and an item already present elsewhere in memory is merged
// in place rather than duplicated.
//
// If the file cannot be read or decrypted the in-memory tree is left
// untouched and an error wrapping ErrOpen is returned.
func (d *Database) Merge() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	theirs, err := d.read()
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return fmt.Errorf("%w: %v", ErrOpen, err)
		}
		return err
	}

	m := newMerger(d.tree, theirs)
	m.mergeGroup(d.tree.Root, theirs.Root)

	d.watermark = d.fileModTime()
	return nil
}

type merger struct {
	ours    *Tree
	theirs  *Tree
	entries map[uuid.UUID]*Entry
	groups  map[uuid.UUID]*Group
	remap   map[int]int
}

func newMerger(ours, theirs *Tree) *merger {
	m := &merger{
		ours:    ours,
		theirs:  theirs,
		entries: make(map[uuid.UUID]*Entry),
		groups:  make(map[uuid.UUID]*Group),
		remap:   make(map[int]int),
	}
	walkGroups(ours.Root, func(g *Group) {
		m.groups[g.UUID] = g
		for _, n := range g.Children {
			if n.Entry != nil {
				m.entries[n.Entry.UUID] = n.Entry
			}
		}
	})
	return m
}

func (m *merger) mergeGroup(ours, theirs *Group) {
	for _, n := range theirs.Children {
		switch {
		case n.Entry != nil:
			if mine, ok := m.entries[n.Entry.UUID]; ok {
				if n.Entry.Times.Modified.After(mine.Times.Modified) {
					mine.wipe()
					*mine = *m.adoptEntry(n.Entry)
				}
				continue
			}
			e := m.adoptEntry(n.Entry)
			m.entries[e.UUID] = e
			ours.Children = append(ours.Children, Node{Entry: e})

		case n.Group != nil:
			if mine, ok := m.groups[n.Group.UUID]; ok {
				m.mergeGroup(mine, n.Group)
				continue
			}
			g := &Group{
				UUID:   n.Group.UUID,
				Name:   n.Group.Name,
				IconID: n.Group.IconID,
				Times:  n.Group.Times,
			}
			m.groups[g.UUID] = g
			ours.Children = append(ours.Children, Node{Group: g})
			m.mergeGroup(g, n.Group)
		}
	}
}

// adoptEntry rebinds the entry's attachment references, and those of its
// history, from the disk table to the in-memory table.
func (m *merger) adoptEntry(e *Entry) *Entry {
	e.Binaries = m.rebind(e.Binaries)
	for _, h := range e.History {
		h.Binaries = m.rebind(h.Binaries)
	}
	return e
}

func (m *merger) rebind(refs []BinaryRef) []BinaryRef {
	out := make([]BinaryRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Index < 0 || ref.Index >= len(m.theirs.Binaries) {
			continue
		}
		out = append(out, BinaryRef{Key: ref.Key, Index: m.slot(ref.Index)})
	}
	return out
}

// slot maps a disk table index to an in-memory one. The same index is kept
// when both tables hold identical content there; otherwise the content is
// appended once.
func (m *merger) slot(idx int) int {
	if mapped, ok := m.remap[idx]; ok {
		return mapped
	}
	data := m.theirs.Binaries[idx].Data
	mapped := idx
	if idx >= len(m.ours.Binaries) || !bytes.Equal(m.ours.Binaries[idx].Data, data) {
		mapped = len(m.ours.Binaries)
		m.ours.Binaries = append(m.ours.Binaries, Binary{Data: data})
	}
	m.remap[idx] = mapped
	return mapped
}
