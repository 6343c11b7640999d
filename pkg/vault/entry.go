package vault

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry returns the entry with the given UUID, including custom fields,
// history and attachments.
func (d *Database) Entry(id string) (EntryData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, owner, err := d.findEntry(id)
	if err != nil {
		return EntryData{}, err
	}
	return entryData(e, owner, d.tree.Binaries), nil
}

// EntriesInGroup returns the direct entries of a group in display order.
func (d *Database) EntriesInGroup(groupID string) ([]EntryData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, err := d.findGroup(groupID)
	if err != nil {
		return nil, err
	}

	entries := make([]EntryData, 0)
	for _, n := range g.Children {
		if n.Entry != nil {
			entries = append(entries, entryData(n.Entry, g, d.tree.Binaries))
		}
	}
	return entries, nil
}

// AllEntries returns every entry in tree pre-order.
func (d *Database) AllEntries() []EntryData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.collectEntries(d.tree.Root, nil)
}

// FavoriteEntries returns the entries flagged as favorite.
func (d *Database) FavoriteEntries() []EntryData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.collectEntries(d.tree.Root, func(e *Entry, _ *Group) bool { return e.Favorite })
}

func (d *Database) collectEntries(g *Group, keep func(*Entry, *Group) bool) []EntryData {
	entries := make([]EntryData, 0)
	walkEntries(g, func(e *Entry, owner *Group) {
		if keep == nil || keep(e, owner) {
			entries = append(entries, entryData(e, owner, d.tree.Binaries))
		}
	})
	return entries
}

// stamp returns the current time, never earlier than floor.
func (d *Database) stamp(floor time.Time) time.Time {
	now := d.now()
	if now.Before(floor) {
		return floor
	}
	return now
}

// CreateEntry adds an entry to data.GroupUUID and returns its UUID. A UUID
// is generated when data.UUID is empty.
func (d *Database) CreateEntry(data EntryData) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	owner, err := d.findGroup(data.GroupUUID)
	if err != nil {
		return "", err
	}
	expiry, err := parseExpiryField(data)
	if err != nil {
		return "", err
	}

	id := uuid.New()
	if data.UUID != "" {
		id, err = uuid.Parse(data.UUID)
		if err != nil {
			return "", ErrInvalidUUID
		}
		if e, _ := findEntry(d.tree.Root, id); e != nil {
			return "", fmt.Errorf("%w: %s is already in use", ErrInvalidUUID, id)
		}
	}

	now := d.now()
	e := &Entry{
		UUID:     id,
		IconID:   cloneInt(data.IconID),
		Favorite: data.IsFavorite,
		Times:    Times{Created: now, Modified: now, Accessed: now},
	}

	e.Fields.Set(FieldTitle, Plain(data.Title))
	e.Fields.Set(FieldUserName, Plain(data.Username))
	e.Fields.Set(FieldPassword, Protected(data.Password))
	if data.URL != "" {
		e.Fields.Set(FieldURL, Plain(data.URL))
	}
	if data.Notes != "" {
		e.Fields.Set(FieldNotes, Plain(data.Notes))
	}
	if data.Tags != "" {
		e.Fields.Set(FieldTags, Plain(data.Tags))
	}
	setCustomFields(e, data.CustomFields)
	applyExpiry(e, data.Expires, expiry)

	owner.Children = append(owner.Children, Node{Entry: e})
	return id.String(), nil
}

// UpdateEntry overwrites an entry with data. When any of title, username,
// password, URL, notes or tags changes, the previous version is pushed onto
// the entry's history first. Custom fields are replaced wholesale.
// Attachments are kept.
func (d *Database) UpdateEntry(data EntryData) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, _, err := d.findEntry(data.UUID)
	if err != nil {
		return err
	}
	expiry, err := parseExpiryField(data)
	if err != nil {
		return err
	}

	changed := e.Get(FieldTitle) != data.Title ||
		e.Get(FieldUserName) != data.Username ||
		e.Get(FieldPassword) != data.Password ||
		e.Get(FieldURL) != data.URL ||
		e.Get(FieldNotes) != data.Notes ||
		e.Get(FieldTags) != data.Tags

	if changed {
		// the snapshot keeps the prior modification time
		e.History = append(e.History, e.snapshot())
	}

	now := d.stamp(e.Times.Modified)
	e.Times.Modified = now
	e.Times.Accessed = now

	kept := e.Fields[:0]
	for _, f := range e.Fields {
		if IsStandardField(f.Key) {
			kept = append(kept, f)
		} else {
			f.Value.protected.Destroy()
		}
	}
	e.Fields = kept

	e.Fields.Set(FieldTitle, Plain(data.Title))
	e.Fields.Set(FieldUserName, Plain(data.Username))
	if old, ok := e.Fields.Get(FieldPassword); !ok || old.Text() != data.Password {
		old.protected.Destroy()
		e.Fields.Set(FieldPassword, Protected(data.Password))
	}
	e.Fields.Set(FieldURL, Plain(data.URL))
	e.Fields.Set(FieldNotes, Plain(data.Notes))
	e.Fields.Set(FieldTags, Plain(data.Tags))
	setCustomFields(e, data.CustomFields)

	e.Favorite = data.IsFavorite
	e.IconID = cloneInt(data.IconID)
	applyExpiry(e, data.Expires, expiry)
	return nil
}

// DeleteEntry removes an entry from its owning group.
func (d *Database) DeleteEntry(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, owner, err := d.findEntry(id)
	if err != nil {
		return err
	}
	owner.removeChild(childIndex(owner, e.UUID, false))
	e.wipe()
	return nil
}

// MoveEntry appends an entry to another group. Moving to the current group
// is a no-op.
func (d *Database) MoveEntry(id, groupID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, owner, err := d.findEntry(id)
	if err != nil {
		return err
	}
	target, err := d.findGroup(groupID)
	if err != nil {
		return err
	}
	if target == owner {
		return nil
	}

	n := owner.removeChild(childIndex(owner, e.UUID, false))
	target.Children = append(target.Children, n)
	return nil
}

// TouchEntry records a use of the entry: the usage counter is incremented
// and the last-access time refreshed. Modification time is unchanged.
func (d *Database) TouchEntry(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, _, err := d.findEntry(id)
	if err != nil {
		return err
	}
	e.Times.UsageCount++
	e.Times.Accessed = d.stamp(e.Times.Accessed)
	return nil
}

// setCustomFields appends custom fields in order. Empty names and names of
// standard fields are ignored.
func setCustomFields(e *Entry, fields []CustomField) {
	for _, f := range fields {
		if f.Name == "" || IsStandardField(f.Name) {
			continue
		}
		if f.Protected {
			e.Fields.Set(f.Name, Protected(f.Value))
		} else {
			e.Fields.Set(f.Name, Plain(f.Value))
		}
	}
}

// parseExpiryField returns the expiry time carried by data, or the zero
// time when data sets none. An expiring entry with an unparseable time is
// rejected with ErrInvalidExpiry.
func parseExpiryField(data EntryData) (time.Time, error) {
	if !data.Expires || data.ExpiryTime == nil || *data.ExpiryTime == "" {
		return time.Time{}, nil
	}
	t, ok := ParseExpiry(*data.ExpiryTime)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, *data.ExpiryTime)
	}
	return t, nil
}

// applyExpiry sets the expiry flag and, when expiry is non-zero, the
// timestamp. A zero expiry keeps the old timestamp.
func applyExpiry(e *Entry, expires bool, expiry time.Time) {
	e.Times.Expires = expires
	if expires && !expiry.IsZero() {
		e.Times.Expiry = expiry
	}
}
