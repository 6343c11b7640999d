package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// LastPassParser parses LastPass CSV export files:
// url,username,password,totp,extra,name,grouping,fav
// Nested groupings are separated by backslashes.
type LastPassParser struct{}

// LastPass CSV column names (header-based parsing).
const (
	lpColURL      = "url"
	lpColUsername = "username"
	lpColPassword = "password"
	lpColTOTP     = "totp"
	lpColExtra    = "extra"
	lpColName     = "name"
	lpColGrouping = "grouping"
	lpColFav      = "fav"
)

// lastPassSecureNoteURL marks secure notes in LastPass exports.
const lastPassSecureNoteURL = "http://sn"

// Source returns the source type for this parser.
func (p *LastPassParser) Source() Source {
	return SourceLastPass
}

// Parse parses LastPass CSV data.
func (p *LastPassParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	result := newResult()

	rows, header, err := readCSV(data, strings.ToLower, result)
	if err != nil {
		return nil, err
	}
	if _, ok := header[lpColName]; !ok {
		return nil, fmt.Errorf("missing required column: %s", lpColName)
	}

	// Track for title fallback
	itemCounter := 1

	for _, row := range rows {
		get := func(col string) string {
			if idx, ok := header[col]; ok && idx < len(row.values) {
				return DecodeHTMLEntities(strings.TrimSpace(row.values[idx]))
			}
			return ""
		}

		entry, warning := p.parseRow(get, opts, &itemCounter)
		if warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: %s", row.num, warning))
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: get(lpColName), Reason: warning})
		}
		if entry != nil {
			result.Entries = append(result.Entries, entry)
		}
	}

	return result, nil
}

// parseRow parses a single CSV row.
func (p *LastPassParser) parseRow(get func(string) string, opts ParseOptions, itemCounter *int) (*ImportedEntry, string) {
	url := get(lpColURL)
	if url == lastPassSecureNoteURL {
		url = ""
	}

	entry := &ImportedEntry{
		Username: get(lpColUsername),
		Password: get(lpColPassword),
		URL:      url,
		Notes:    get(lpColExtra),
		Favorite: get(lpColFav) == "1",
	}
	// some LastPass versions do not export TOTP
	entry.AddField(FieldTOTP, get(lpColTOTP), true)

	if entry.Username == "" && entry.Password == "" && entry.Notes == "" && len(entry.CustomFields) == 0 {
		return nil, "skipped: no useful data"
	}

	entry.Title = titleOrFallback(get(lpColName), url, itemCounter)
	applyFolder(entry, SplitFolderPath(get(lpColGrouping), `\`), opts)
	return entry, ""
}

type csvRow struct {
	num    int
	values []string
}

// readCSV reads a CSV export with a header line. Column names are mapped
// through normalize. Malformed rows are reported as warnings and skipped.
func readCSV(data []byte, normalize func(string) string, result *ImportResult) ([]csvRow, map[string]int, error) {
	// Strip UTF-8 BOM if present
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true // Handle malformed exports
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[normalize(strings.TrimSpace(col))] = i
	}

	var rows []csvRow
	rowNum := 1 // header is row 1
	for {
		rowNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: failed to parse: %v", rowNum, err))
			continue
		}
		if len(row) != len(header) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: column count mismatch (expected %d, got %d)",
					rowNum, len(header), len(row)))
			continue
		}
		rows = append(rows, csvRow{num: rowNum, values: row})
	}
	return rows, colIndex, nil
}
