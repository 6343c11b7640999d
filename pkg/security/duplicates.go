package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// DuplicateGroup represents a set of entries sharing the same password.
type DuplicateGroup struct {
	// EntryIDs contains the affected entry identifiers.
	EntryIDs []string `json:"entry_ids,omitempty"`
	// Count is the number of entries sharing the password.
	Count int `json:"count"`
}

// sessionKey lazily creates the per-calculator HMAC key. Hashes are never
// persisted and are meaningless across calculators.
func (c *Calculator) sessionKey() ([]byte, error) {
	if c.hmacKey == nil {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		c.hmacKey = key
	}
	return c.hmacKey, nil
}

// passwordHashes groups record IDs by keyed password hash, in record order.
// Empty passwords are skipped.
func (c *Calculator) passwordHashes(records []Record) (map[string][]string, []string, error) {
	key, err := c.sessionKey()
	if err != nil {
		return nil, nil, err
	}

	groups := make(map[string][]string)
	var order []string
	for _, r := range records {
		if r.Password == "" {
			continue
		}
		h := computeValueHash(r.Password, key)
		if _, ok := groups[h]; !ok {
			order = append(order, h)
		}
		groups[h] = append(groups[h], r.ID)
	}
	return groups, order, nil
}

// FindDuplicates groups records whose passwords are identical.
// Passwords are compared through HMAC-SHA256 with a session-local key so
// that plaintext never serves as a map key.
// Returns groups sorted by count (most duplicated first).
func (c *Calculator) FindDuplicates(records []Record, includeIDs bool, limit int) ([]DuplicateGroup, error) {
	hashes, order, err := c.passwordHashes(records)
	if err != nil {
		return nil, err
	}

	var groups []DuplicateGroup
	for _, h := range order {
		ids := hashes[h]
		if len(ids) <= 1 {
			continue
		}
		group := DuplicateGroup{Count: len(ids)}
		if includeIDs {
			group.EntryIDs = append([]string(nil), ids...)
		}
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})

	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}

	return groups, nil
}

// computeValueHash computes HMAC-SHA256 of a value with the session key.
func computeValueHash(value string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

// FindWeakPasswords returns one issue per record whose password is below
// the calculator's weak threshold.
func (c *Calculator) FindWeakPasswords(records []Record, includeIDs bool, limit int) []SecurityIssue {
	var issues []SecurityIssue

	for _, r := range records {
		bits := Entropy(r.Password)
		if bits >= c.weakBits {
			continue
		}
		issue := SecurityIssue{
			Type:        IssueWeakPassword,
			Severity:    SeverityWarning,
			Description: "Password has insufficient entropy (" + formatBits(bits) + ")",
			Suggestion:  "Use a longer password mixing letters, digits and symbols",
		}
		if includeIDs {
			issue.EntryID = r.ID
			issue.Title = r.Title
		}
		issues = append(issues, issue)
	}

	if limit > 0 && len(issues) > limit {
		issues = issues[:limit]
	}

	return issues
}
