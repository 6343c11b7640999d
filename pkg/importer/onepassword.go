package importer

import (
	"fmt"
	"strings"
)

// OnePasswordParser parses 1Password CSV export files:
// Title,Website,Username,Password,OTPAuth,Favorite,Archived,Tags,Notes
type OnePasswordParser struct{}

// 1Password CSV column names (header-based parsing).
const (
	op1ColTitle    = "Title"
	op1ColWebsite  = "Website"
	op1ColUsername = "Username"
	op1ColPassword = "Password"
	op1ColOTPAuth  = "OTPAuth"
	op1ColFavorite = "Favorite"
	op1ColArchived = "Archived"
	op1ColTags     = "Tags"
	op1ColNotes    = "Notes"
)

// ArchivedTag marks entries that were archived in 1Password.
const ArchivedTag = "archived"

// Source returns the source type for this parser.
func (p *OnePasswordParser) Source() Source {
	return Source1Password
}

// Parse parses 1Password CSV data. 1Password has no folders; tags are kept.
func (p *OnePasswordParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	result := newResult()

	rows, header, err := readCSV(data, func(s string) string { return s }, result)
	if err != nil {
		return nil, err
	}
	if _, ok := header[op1ColTitle]; !ok {
		return nil, fmt.Errorf("missing required column: %s", op1ColTitle)
	}

	// Track for title fallback
	itemCounter := 1

	for _, row := range rows {
		get := func(col string) string {
			if idx, ok := header[col]; ok && idx < len(row.values) {
				return strings.TrimSpace(row.values[idx])
			}
			return ""
		}

		entry, warning := p.parseRow(get, &itemCounter)
		if warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: %s", row.num, warning))
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: get(op1ColTitle), Reason: warning})
		}
		if entry != nil {
			result.Entries = append(result.Entries, entry)
		}
	}

	return result, nil
}

// parseRow parses a single CSV row.
func (p *OnePasswordParser) parseRow(get func(string) string, itemCounter *int) (*ImportedEntry, string) {
	entry := &ImportedEntry{
		Username: get(op1ColUsername),
		Password: get(op1ColPassword),
		URL:      get(op1ColWebsite),
		Notes:    get(op1ColNotes),
		Favorite: isTrue(get(op1ColFavorite)),
	}
	entry.AddField(FieldTOTP, get(op1ColOTPAuth), true)

	if entry.Username == "" && entry.Password == "" && entry.Notes == "" && len(entry.CustomFields) == 0 {
		return nil, "skipped: no useful data"
	}

	entry.Title = titleOrFallback(get(op1ColTitle), entry.URL, itemCounter)

	for _, t := range strings.Split(get(op1ColTags), ",") {
		if t = strings.TrimSpace(t); t != "" {
			entry.Tags = append(entry.Tags, t)
		}
	}
	if isTrue(get(op1ColArchived)) {
		entry.Tags = append(entry.Tags, ArchivedTag)
	}
	return entry, ""
}

func isTrue(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}
