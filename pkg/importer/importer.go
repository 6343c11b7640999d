// Package importer parses exports from other password managers into
// entries and folder paths, and applies them to an open database.
// Supports 1Password CSV, Bitwarden JSON, and LastPass CSV formats.
package importer

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/simplepm/pkg/vault"
)

// Source represents the source password manager format.
type Source string

const (
	Source1Password Source = "1password"
	SourceBitwarden Source = "bitwarden"
	SourceLastPass  Source = "lastpass"
)

// Custom field names produced by the parsers.
const (
	FieldTOTP = "TOTP"
)

// ImportedEntry is one parsed item, independent of the destination tree.
type ImportedEntry struct {
	Title    string
	Username string
	Password string
	URL      string
	Notes    string
	Tags     []string
	Favorite bool

	// GroupPath is the folder path below the import root. Empty means the
	// import root itself.
	GroupPath []string

	CustomFields []vault.CustomField
}

// AddField appends a custom field. Empty values are dropped; empty, reserved
// or repeated names get a unique name.
func (e *ImportedEntry) AddField(name, value string, protected bool) {
	if value == "" {
		return
	}
	e.CustomFields = append(e.CustomFields, vault.CustomField{
		Name:      uniqueFieldName(name, e.CustomFields),
		Value:     value,
		Protected: protected,
	})
}

// EntryData converts the entry for vault.Database.CreateEntry.
func (e *ImportedEntry) EntryData(groupID string) vault.EntryData {
	return vault.EntryData{
		Title:        e.Title,
		Username:     e.Username,
		Password:     e.Password,
		URL:          e.URL,
		Notes:        e.Notes,
		Tags:         strings.Join(e.Tags, ","),
		GroupUUID:    groupID,
		IsFavorite:   e.Favorite,
		CustomFields: append([]vault.CustomField(nil), e.CustomFields...),
	}
}

// ImportResult contains the results of an import operation.
type ImportResult struct {
	// Entries are the successfully parsed entries in file order.
	Entries []*ImportedEntry

	// Warnings are non-fatal issues encountered during parsing.
	Warnings []string

	// Skipped are items that were skipped with reasons.
	Skipped []SkippedItem
}

// SkippedItem represents an item that was skipped during import.
type SkippedItem struct {
	OriginalName string
	Reason       string
}

func newResult() *ImportResult {
	return &ImportResult{
		Entries:  make([]*ImportedEntry, 0),
		Warnings: make([]string, 0),
		Skipped:  make([]SkippedItem, 0),
	}
}

// Parser is the interface for export format parsers.
type Parser interface {
	// Parse parses the input data and returns imported entries.
	Parse(data []byte, opts ParseOptions) (*ImportResult, error)

	// Source returns the source type for this parser.
	Source() Source
}

// ParseOptions contains options for parsing.
type ParseOptions struct {
	// FlattenFolders puts every entry directly in the import root and
	// records the source folder as a tag instead.
	FlattenFolders bool
}

// applyFolder sets the group path, or a tag when folders are flattened.
func applyFolder(e *ImportedEntry, path []string, opts ParseOptions) {
	if len(path) == 0 {
		return
	}
	if opts.FlattenFolders {
		e.Tags = append(e.Tags, strings.Join(path, "/"))
		return
	}
	e.GroupPath = path
}

// SplitFolderPath splits a nested folder name on sep, dropping empty
// segments and surrounding whitespace.
func SplitFolderPath(folder, sep string) []string {
	var path []string
	for _, part := range strings.Split(folder, sep) {
		part = NormalizeValue(part)
		if part != "" {
			path = append(path, part)
		}
	}
	return path
}

// uniqueFieldName returns name, or name with a numeric suffix, so that it
// is non-empty, not a standard field and not already used.
func uniqueFieldName(name string, existing []vault.CustomField) string {
	name = NormalizeValue(name)
	if name == "" {
		name = "Custom field"
	}
	taken := func(n string) bool {
		if vault.IsStandardField(n) {
			return true
		}
		for _, f := range existing {
			if f.Name == n {
				return true
			}
		}
		return false
	}

	candidate := name
	for i := 2; taken(candidate); i++ {
		candidate = fmt.Sprintf("%s (%d)", name, i)
	}
	return candidate
}

// FallbackTitle generates a title when the original name is empty:
// the URL hostname if there is one, otherwise "Imported item N".
func FallbackTitle(url string, counter int) string {
	if url != "" {
		if hostname := extractHostname(url); hostname != "" {
			return hostname
		}
	}
	return fmt.Sprintf("Imported item %d", counter)
}

// extractHostname extracts the hostname from a URL.
func extractHostname(urlStr string) string {
	// Simple hostname extraction without full URL parsing
	urlStr = strings.TrimPrefix(urlStr, "https://")
	urlStr = strings.TrimPrefix(urlStr, "http://")

	if idx := strings.Index(urlStr, "/"); idx != -1 {
		urlStr = urlStr[:idx]
	}
	if idx := strings.Index(urlStr, ":"); idx != -1 {
		urlStr = urlStr[:idx]
	}

	return strings.TrimPrefix(urlStr, "www.")
}

// titleOrFallback normalizes name, falling back to FallbackTitle.
func titleOrFallback(name, url string, counter *int) string {
	title := NormalizeValue(name)
	if title == "" {
		title = FallbackTitle(url, *counter)
		*counter++
	}
	return title
}

// DecodeHTMLEntities decodes common HTML entities found in LastPass exports.
func DecodeHTMLEntities(s string) string {
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&apos;", "'")
	return s
}

// NormalizeValue trims whitespace and normalizes Unicode to NFC.
func NormalizeValue(s string) string {
	s = strings.TrimSpace(s)
	s = norm.NFC.String(s)
	return s
}

// IsEmptyOrWhitespace checks if a string is empty or contains only whitespace.
func IsEmptyOrWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// GetParser returns a parser for the given source.
func GetParser(source Source) (Parser, error) {
	switch source {
	case Source1Password:
		return &OnePasswordParser{}, nil
	case SourceBitwarden:
		return &BitwardenParser{}, nil
	case SourceLastPass:
		return &LastPassParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported import source: %s", source)
	}
}

// ValidSources returns a list of valid source names.
func ValidSources() []string {
	return []string{
		string(Source1Password),
		string(SourceBitwarden),
		string(SourceLastPass),
	}
}
