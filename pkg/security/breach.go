package security

import (
	"crypto/sha1" //nolint:gosec // range queries are keyed by SHA-1 by protocol
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// BreachPrefixLength is the number of hex characters sent in a k-anonymity
// range query.
const BreachPrefixLength = 5

// BreachCandidate is one entry awaiting a range-query answer.
type BreachCandidate struct {
	EntryID string
	Suffix  string
}

// BreachBatch is the set of entries that share one hash prefix.
type BreachBatch struct {
	Prefix     string
	Candidates []BreachCandidate
}

// BreachBatches plans range queries for a snapshot of records. Each distinct
// prefix appears once; batches are sorted by prefix. Empty passwords are
// skipped. The network client works on the result after any database lock
// has been released.
func BreachBatches(records []Record) []BreachBatch {
	byPrefix := make(map[string][]BreachCandidate)
	for _, r := range records {
		if r.Password == "" {
			continue
		}
		sum := sha1.Sum([]byte(r.Password)) //nolint:gosec
		h := strings.ToUpper(hex.EncodeToString(sum[:]))
		prefix := h[:BreachPrefixLength]
		byPrefix[prefix] = append(byPrefix[prefix], BreachCandidate{
			EntryID: r.ID,
			Suffix:  h[BreachPrefixLength:],
		})
	}

	batches := make([]BreachBatch, 0, len(byPrefix))
	for p, c := range byPrefix {
		batches = append(batches, BreachBatch{Prefix: p, Candidates: c})
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].Prefix < batches[j].Prefix })
	return batches
}

// MatchBreachResponse parses a range-query response body of SUFFIX:COUNT
// lines and returns the breach count per candidate entry. Entries not in
// the response are omitted.
func MatchBreachResponse(batch BreachBatch, body string) map[string]int {
	counts := make(map[string]int)
	for _, line := range strings.Split(body, "\n") {
		suffix, count, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(count)
		if err != nil || n <= 0 {
			continue
		}
		for _, c := range batch.Candidates {
			if strings.EqualFold(c.Suffix, suffix) {
				counts[c.EntryID] = n
			}
		}
	}
	return counts
}
