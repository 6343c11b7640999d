package vault

import (
	"time"

	"github.com/google/uuid"
)

// Timestamp layouts used by the DTOs. Expiry has minute precision; input
// also accepts seconds.
const (
	TimeLayout   = "2006-01-02T15:04:05"
	ExpiryLayout = "2006-01-02T15:04"
)

// CustomField is a user-defined entry field.
type CustomField struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Protected bool   `json:"protected"`
}

// HistoryEntry is a prior version of an entry's standard fields.
type HistoryEntry struct {
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	URL       string `json:"url"`
	Notes     string `json:"notes"`
}

// EntryAttachment is a named attachment with its content.
type EntryAttachment struct {
	Key  string `json:"key"`
	Data []byte `json:"data"`
}

// EntryData is the flat, serializable form of an entry. It is used both for
// query results and as mutation input.
type EntryData struct {
	UUID         string            `json:"uuid"`
	Title        string            `json:"title"`
	Username     string            `json:"username"`
	Password     string            `json:"password"`
	URL          string            `json:"url"`
	Notes        string            `json:"notes"`
	Tags         string            `json:"tags"`
	GroupUUID    string            `json:"group_uuid"`
	IconID       *int              `json:"icon_id,omitempty"`
	IsFavorite   bool              `json:"is_favorite"`
	Created      *string           `json:"created,omitempty"`
	Modified     *string           `json:"modified,omitempty"`
	LastAccessed *string           `json:"last_accessed,omitempty"`
	ExpiryTime   *string           `json:"expiry_time,omitempty"`
	Expires      bool              `json:"expires"`
	UsageCount   int               `json:"usage_count"`
	CustomFields []CustomField     `json:"custom_fields"`
	History      []HistoryEntry    `json:"history"`
	Attachments  []EntryAttachment `json:"attachments"`
}

// GroupData is the flat, serializable form of a group and its subgroups.
type GroupData struct {
	UUID       string      `json:"uuid"`
	Name       string      `json:"name"`
	ParentUUID *string     `json:"parent_uuid,omitempty"`
	Children   []GroupData `json:"children"`
	IconID     *int        `json:"icon_id,omitempty"`
}

// Find returns the group with the given UUID within g's subtree.
func (g GroupData) Find(id string) (GroupData, bool) {
	if g.UUID == id {
		return g, true
	}
	for _, c := range g.Children {
		if found, ok := c.Find(id); ok {
			return found, true
		}
	}
	return GroupData{}, false
}

// KdfInfo describes the key derivation parameters of the open database.
type KdfInfo struct {
	KdfType     string  `json:"kdf_type"`
	IsWeak      bool    `json:"is_weak"`
	Iterations  *uint64 `json:"iterations,omitempty"`
	Memory      *uint64 `json:"memory,omitempty"`
	Parallelism *uint32 `json:"parallelism,omitempty"`
}

func formatTime(t time.Time, layout string) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(layout)
	return &s
}

// ParseExpiry parses an expiry timestamp in minute or second precision.
func ParseExpiry(s string) (time.Time, bool) {
	for _, layout := range []string{ExpiryLayout, TimeLayout} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// entryData converts an entry to its DTO. binaries is the database-wide
// attachment table.
func entryData(e *Entry, owner *Group, binaries []Binary) EntryData {
	data := EntryData{
		UUID:         e.UUID.String(),
		Title:        e.Get(FieldTitle),
		Username:     e.Get(FieldUserName),
		Password:     e.Get(FieldPassword),
		URL:          e.Get(FieldURL),
		Notes:        e.Get(FieldNotes),
		Tags:         e.Get(FieldTags),
		GroupUUID:    owner.UUID.String(),
		IconID:       cloneInt(e.IconID),
		IsFavorite:   e.Favorite,
		Created:      formatTime(e.Times.Created, TimeLayout),
		Modified:     formatTime(e.Times.Modified, TimeLayout),
		LastAccessed: formatTime(e.Times.Accessed, TimeLayout),
		ExpiryTime:   formatTime(e.Times.Expiry, ExpiryLayout),
		Expires:      e.Times.Expires,
		UsageCount:   e.Times.UsageCount,
		CustomFields: []CustomField{},
		History:      []HistoryEntry{},
		Attachments:  []EntryAttachment{},
	}

	for _, f := range e.Fields {
		if IsStandardField(f.Key) {
			continue
		}
		data.CustomFields = append(data.CustomFields, CustomField{
			Name:      f.Key,
			Value:     f.Value.Text(),
			Protected: f.Value.IsProtected(),
		})
	}

	for _, h := range e.History {
		ts := ""
		if p := formatTime(h.Times.Modified, TimeLayout); p != nil {
			ts = *p
		}
		data.History = append(data.History, HistoryEntry{
			Timestamp: ts,
			Title:     h.Get(FieldTitle),
			Username:  h.Get(FieldUserName),
			Password:  h.Get(FieldPassword),
			URL:       h.Get(FieldURL),
			Notes:     h.Get(FieldNotes),
		})
	}

	data.Attachments = entryAttachments(e, binaries)
	return data
}

// groupData converts g and its subgroups. Entries are not included.
func groupData(g *Group, parent *uuid.UUID) GroupData {
	data := GroupData{
		UUID:     g.UUID.String(),
		Name:     g.Name,
		IconID:   cloneInt(g.IconID),
		Children: []GroupData{},
	}
	if parent != nil {
		p := parent.String()
		data.ParentUUID = &p
	}
	for _, n := range g.Children {
		if n.Group != nil {
			data.Children = append(data.Children, groupData(n.Group, &g.UUID))
		}
	}
	return data
}
