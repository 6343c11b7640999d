// Package secret holds sensitive strings in wipeable memory.
package secret

import (
	"encoding/json"
	"runtime"

	"github.com/forest6511/simplepm/pkg/crypto"
)

// String is a secret value backed by a private byte slice. The bytes are
// zeroed by Destroy, and by a finalizer if Destroy was never called.
// The zero value is an empty secret.
type String struct {
	b *[]byte
}

// New copies s into a new secret.
func New(s string) String {
	return FromBytes([]byte(s))
}

// FromBytes takes ownership of b. Callers must not retain b.
func FromBytes(b []byte) String {
	if len(b) == 0 {
		return String{}
	}
	p := &b
	runtime.SetFinalizer(p, func(p *[]byte) { crypto.SecureWipe(*p) })
	return String{b: p}
}

// Expose returns the plaintext. The returned string is an ordinary Go
// string and is not wiped.
func (s String) Expose() string {
	if s.b == nil {
		return ""
	}
	return string(*s.b)
}

// Bytes returns a copy of the secret bytes which the caller should wipe.
func (s String) Bytes() []byte {
	if s.b == nil {
		return nil
	}
	return append([]byte(nil), (*s.b)...)
}

// Len returns the length of the secret in bytes.
func (s String) Len() int {
	if s.b == nil {
		return 0
	}
	return len(*s.b)
}

// IsEmpty reports whether the secret has no content.
func (s String) IsEmpty() bool { return s.Len() == 0 }

// Equal compares two secrets by content.
func (s String) Equal(o String) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if (*s.b)[i] != (*o.b)[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s String) Clone() String {
	return FromBytes(s.Bytes())
}

// Destroy zeroes the backing memory. Other copies of the same String
// observe an empty value afterwards.
func (s String) Destroy() {
	if s.b == nil {
		return
	}
	crypto.SecureWipe(*s.b)
	*s.b = (*s.b)[:0]
}

// String redacts the value so secrets do not leak through fmt or logs.
func (s String) String() string {
	if s.IsEmpty() {
		return ""
	}
	return "[REDACTED]"
}

// MarshalJSON encodes the plaintext. Only the file codec should serialize
// secrets.
func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Expose())
}

// UnmarshalJSON decodes a plaintext JSON string into wipeable memory.
func (s *String) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = New(v)
	return nil
}
