package vault

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/forest6511/simplepm/pkg/crypto"
	"github.com/forest6511/simplepm/pkg/secret"
)

// Standard entry field keys. Every other key in an entry's field set is a
// custom field.
const (
	FieldTitle    = "Title"
	FieldUserName = "UserName"
	FieldPassword = "Password"
	FieldURL      = "URL"
	FieldNotes    = "Notes"
	FieldTags     = "Tags"
)

var standardFields = []string{FieldTitle, FieldUserName, FieldPassword, FieldURL, FieldNotes, FieldTags}

// IsStandardField reports whether key names one of the standard entry fields.
func IsStandardField(key string) bool {
	for _, f := range standardFields {
		if f == key {
			return true
		}
	}
	return false
}

// Tree is the decrypted content of a database file as produced and
// consumed by a Codec.
type Tree struct {
	Meta     Meta             `json:"meta"`
	KDF      crypto.KDFParams `json:"kdf"`
	Root     *Group           `json:"root"`
	Binaries []Binary         `json:"binaries,omitempty"`
}

// Meta holds database-level metadata.
type Meta struct {
	Generator string    `json:"generator,omitempty"`
	Created   time.Time `json:"created"`
}

// Binary is one slot of the database-wide attachment table. Slots are
// append-only; entries refer to them by index.
type Binary struct {
	Data []byte `json:"data"`
}

// Group is a folder node. Children keeps user-controlled order and mixes
// entries and subgroups.
type Group struct {
	UUID     uuid.UUID `json:"uuid"`
	Name     string    `json:"name"`
	IconID   *int      `json:"icon_id,omitempty"`
	Times    Times     `json:"times"`
	Children []Node    `json:"children,omitempty"`
}

// Node is a child slot of a group. Exactly one of Group or Entry is set.
type Node struct {
	Group *Group `json:"group,omitempty"`
	Entry *Entry `json:"entry,omitempty"`
}

// Times is the timestamp set shared by entries and groups.
type Times struct {
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
	Accessed   time.Time `json:"accessed"`
	Expires    bool      `json:"expires"`
	Expiry     time.Time `json:"expiry,omitempty"`
	UsageCount int       `json:"usage_count"`
}

// Entry is a single credential record.
type Entry struct {
	UUID     uuid.UUID   `json:"uuid"`
	IconID   *int        `json:"icon_id,omitempty"`
	Favorite bool        `json:"favorite,omitempty"`
	Fields   Fields      `json:"fields"`
	Times    Times       `json:"times"`
	Binaries []BinaryRef `json:"binaries,omitempty"`
	History  []*Entry    `json:"history,omitempty"`
}

// BinaryRef binds an attachment name to a slot in the attachment table.
type BinaryRef struct {
	Key   string `json:"key"`
	Index int    `json:"index"`
}

// Get returns the text of field key, or "" when absent.
func (e *Entry) Get(key string) string {
	v, _ := e.Fields.Get(key)
	return v.Text()
}

// Clone returns a deep copy of the entry including its history.
func (e *Entry) Clone() *Entry {
	c := *e
	c.IconID = cloneInt(e.IconID)
	c.Fields = e.Fields.Clone()
	c.Binaries = append([]BinaryRef(nil), e.Binaries...)
	if e.History != nil {
		c.History = make([]*Entry, len(e.History))
		for i, h := range e.History {
			c.History[i] = h.Clone()
		}
	}
	return &c
}

// snapshot copies the entry for the history stack, without nested history.
func (e *Entry) snapshot() *Entry {
	c := *e
	c.History = nil
	return c.Clone()
}

// wipe destroys protected values held by the entry and its history.
func (e *Entry) wipe() {
	for _, f := range e.Fields {
		f.Value.protected.Destroy()
	}
	for _, h := range e.History {
		h.wipe()
	}
}

// Value is a field value: either plain text or a protected secret.
type Value struct {
	plain       string
	protected   secret.String
	isProtected bool
}

// Plain returns an unprotected value.
func Plain(s string) Value { return Value{plain: s} }

// Protected returns a value held in wipeable memory.
func Protected(s string) Value {
	return Value{protected: secret.New(s), isProtected: true}
}

// IsProtected reports whether the value is held as a secret.
func (v Value) IsProtected() bool { return v.isProtected }

// Text returns the value's plaintext.
func (v Value) Text() string {
	if v.isProtected {
		return v.protected.Expose()
	}
	return v.plain
}

// Clone returns an independent copy.
func (v Value) Clone() Value {
	if v.isProtected {
		return Value{protected: v.protected.Clone(), isProtected: true}
	}
	return v
}

type valueJSON struct {
	Value     string `json:"value"`
	Protected bool   `json:"protected,omitempty"`
}

// MarshalJSON encodes the value for the codec.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueJSON{Value: v.Text(), Protected: v.isProtected})
}

// UnmarshalJSON decodes a value written by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw valueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Protected {
		*v = Protected(raw.Value)
	} else {
		*v = Plain(raw.Value)
	}
	return nil
}

// Field is one named value in an entry's field set.
type Field struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Fields is an insertion-ordered set of named values.
type Fields []Field

// Get returns the value stored under key.
func (fs Fields) Get(key string) (Value, bool) {
	for _, f := range fs {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the value under key in place, or appends it.
func (fs *Fields) Set(key string, v Value) {
	for i := range *fs {
		if (*fs)[i].Key == key {
			(*fs)[i].Value = v
			return
		}
	}
	*fs = append(*fs, Field{Key: key, Value: v})
}

// Delete removes key, keeping the order of the remaining fields.
func (fs *Fields) Delete(key string) {
	for i := range *fs {
		if (*fs)[i].Key == key {
			*fs = append((*fs)[:i], (*fs)[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy.
func (fs Fields) Clone() Fields {
	if fs == nil {
		return nil
	}
	out := make(Fields, len(fs))
	for i, f := range fs {
		out[i] = Field{Key: f.Key, Value: f.Value.Clone()}
	}
	return out
}

// NewTree returns an empty tree whose root group is called name.
func NewTree(name string, kdf crypto.KDFParams, now time.Time) *Tree {
	return &Tree{
		Meta: Meta{Generator: "simplepm", Created: now},
		KDF:  kdf,
		Root: &Group{
			UUID:  uuid.New(),
			Name:  name,
			Times: Times{Created: now, Modified: now, Accessed: now},
		},
	}
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
