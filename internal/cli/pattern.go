// Package cli provides shared utilities for CLI commands.
package cli

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/forest6511/simplepm/pkg/vault"
)

// ErrAmbiguous is returned when a selector that must name one item matches
// several.
var ErrAmbiguous = errors.New("cli: selector is ambiguous")

// IsPattern reports whether s contains glob characters.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// MatchEntries selects entries by UUID, exact title or glob pattern over
// titles. Matching preserves the order of entries.
func MatchEntries(selector string, entries []vault.EntryData) ([]vault.EntryData, error) {
	// Validate pattern syntax
	if _, err := path.Match(selector, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", selector, err)
	}

	if _, err := uuid.Parse(selector); err == nil {
		for _, e := range entries {
			if strings.EqualFold(e.UUID, selector) {
				return []vault.EntryData{e}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", vault.ErrEntryNotFound, selector)
	}

	var matches []vault.EntryData
	if !IsPattern(selector) {
		for _, e := range entries {
			if e.Title == selector {
				matches = append(matches, e)
			}
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: no entry titled '%s'", vault.ErrEntryNotFound, selector)
		}
		return matches, nil
	}

	for _, e := range entries {
		matched, err := path.Match(selector, e.Title)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no entries match pattern '%s'", vault.ErrEntryNotFound, selector)
	}
	return matches, nil
}

// MatchAll expands several selectors. The result holds each entry once, in
// order of first match.
func MatchAll(selectors []string, entries []vault.EntryData) ([]vault.EntryData, error) {
	seen := make(map[string]bool)
	var result []vault.EntryData

	for _, s := range selectors {
		matches, err := MatchEntries(s, entries)
		if err != nil {
			return nil, err
		}
		for _, e := range matches {
			if !seen[e.UUID] {
				seen[e.UUID] = true
				result = append(result, e)
			}
		}
	}
	return result, nil
}

// ResolveEntry selects exactly one entry.
func ResolveEntry(selector string, entries []vault.EntryData) (vault.EntryData, error) {
	matches, err := MatchEntries(selector, entries)
	if err != nil {
		return vault.EntryData{}, err
	}
	if len(matches) > 1 {
		return vault.EntryData{}, fmt.Errorf("%w: '%s' matches %d entries, use the UUID", ErrAmbiguous, selector, len(matches))
	}
	return matches[0], nil
}

// Titles returns the sorted, distinct entry titles.
func Titles(entries []vault.EntryData) []string {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[e.Title] = struct{}{}
	}
	return MapKeys(set)
}

// MapKeys extracts keys from a map and returns them sorted.
func MapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
