package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/forest6511/simplepm/pkg/vault"
)

// FromEntryData converts a database entry for export. groupPath is the
// entry's folder path below the exported root.
func FromEntryData(e vault.EntryData, groupPath []string) *ImportedEntry {
	out := &ImportedEntry{
		Title:        e.Title,
		Username:     e.Username,
		Password:     e.Password,
		URL:          e.URL,
		Notes:        e.Notes,
		Favorite:     e.IsFavorite,
		GroupPath:    groupPath,
		CustomFields: append([]vault.CustomField(nil), e.CustomFields...),
	}
	for _, t := range strings.Split(e.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out.Tags = append(out.Tags, t)
		}
	}
	return out
}

// WriteLastPassCSV writes entries in the LastPass CSV layout read by
// LastPassParser. The TOTP custom field fills the totp column; other
// custom fields and tags have no column and are not written.
func WriteLastPassCSV(w io.Writer, entries []*ImportedEntry) error {
	cw := csv.NewWriter(w)
	header := []string{lpColURL, lpColUsername, lpColPassword, lpColTOTP, lpColExtra, lpColName, lpColGrouping, lpColFav}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		var totp string
		for _, f := range e.CustomFields {
			if f.Name == FieldTOTP {
				totp = f.Value
				break
			}
		}
		fav := "0"
		if e.Favorite {
			fav = "1"
		}
		row := []string{e.URL, e.Username, e.Password, totp, e.Notes, e.Title, strings.Join(e.GroupPath, `\`), fav}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write %q: %w", e.Title, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// LostInCSV reports whether writing e as LastPass CSV drops data.
func LostInCSV(e *ImportedEntry) bool {
	if len(e.Tags) > 0 {
		return true
	}
	for _, f := range e.CustomFields {
		if f.Name != FieldTOTP {
			return true
		}
	}
	return false
}
