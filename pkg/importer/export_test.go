package importer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/simplepm/pkg/vault"
)

func TestFromEntryData(t *testing.T) {
	e := vault.EntryData{
		Title:        "GitHub",
		Username:     "alice",
		Password:     "pw",
		Tags:         "dev, work,,",
		IsFavorite:   true,
		CustomFields: []vault.CustomField{{Name: FieldTOTP, Value: "otpauth://x", Protected: true}},
	}
	got := FromEntryData(e, []string{"Work"})

	assert.Equal(t, "GitHub", got.Title)
	assert.Equal(t, []string{"dev", "work"}, got.Tags)
	assert.Equal(t, []string{"Work"}, got.GroupPath)
	assert.True(t, got.Favorite)
	require.Len(t, got.CustomFields, 1)

	// The converted entry must not alias the source fields.
	got.CustomFields[0].Value = "changed"
	assert.Equal(t, "otpauth://x", e.CustomFields[0].Value)
}

func TestWriteLastPassCSV_RoundTrip(t *testing.T) {
	entries := []*ImportedEntry{
		{
			Title:     "GitHub",
			Username:  "alice",
			Password:  `p,a"ss`,
			URL:       "https://github.com",
			Notes:     "line one\nline two",
			Favorite:  true,
			GroupPath: []string{"Work", "Dev"},
			CustomFields: []vault.CustomField{
				{Name: FieldTOTP, Value: "otpauth://totp/x", Protected: true},
			},
		},
		{Title: "Mail", Username: "bob", Password: "pw"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLastPassCSV(&buf, entries))

	result, err := (&LastPassParser{}).Parse(buf.Bytes(), ParseOptions{})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Empty(t, result.Warnings)

	got := result.Entries[0]
	assert.Equal(t, "GitHub", got.Title)
	assert.Equal(t, `p,a"ss`, got.Password)
	assert.Equal(t, "line one\nline two", got.Notes)
	assert.Equal(t, []string{"Work", "Dev"}, got.GroupPath)
	assert.True(t, got.Favorite)
	require.Len(t, got.CustomFields, 1)
	assert.Equal(t, "otpauth://totp/x", got.CustomFields[0].Value)

	assert.Empty(t, result.Entries[1].GroupPath)
	assert.False(t, result.Entries[1].Favorite)
}

func TestLostInCSV(t *testing.T) {
	assert.False(t, LostInCSV(&ImportedEntry{Title: "a"}))
	assert.False(t, LostInCSV(&ImportedEntry{CustomFields: []vault.CustomField{{Name: FieldTOTP, Value: "x"}}}))
	assert.True(t, LostInCSV(&ImportedEntry{Tags: []string{"t"}}))
	assert.True(t, LostInCSV(&ImportedEntry{CustomFields: []vault.CustomField{{Name: "PIN", Value: "1"}}}))
}
