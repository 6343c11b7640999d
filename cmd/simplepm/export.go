package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/internal/cli"
	"github.com/forest6511/simplepm/pkg/importer"
	"github.com/forest6511/simplepm/pkg/vault"
)

// Export format constants
const (
	formatJSON = "json"
	formatCSV  = "csv"
)

// Export command flags
var (
	exportFormat string
	exportOutput string
	exportGroup  string
	exportForce  bool
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", formatJSON, "Output format: json, csv (LastPass layout)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: stdout)")
	exportCmd.Flags().StringVarP(&exportGroup, "group", "g", "", "Only export this group and its subgroups")
	exportCmd.Flags().BoolVar(&exportForce, "force", false, "Overwrite existing file without confirmation")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export entries as unencrypted JSON or CSV",
	Long: `Export entries with their passwords in plain text.

The CSV format uses the LastPass column layout and can be read back with
'simplepm import --from lastpass'. It has no columns for tags or custom
fields other than TOTP; use JSON to keep them.

Examples:
  # Export everything as JSON to stdout
  simplepm export

  # Export one group as CSV
  simplepm export -g Work -f csv -o work.csv`,
	Args: cobra.NoArgs,
	RunE: executeExport,
}

// exportEntry is one entry in the JSON export.
type exportEntry struct {
	Title        string              `json:"title"`
	Group        string              `json:"group,omitempty"`
	Username     string              `json:"username,omitempty"`
	Password     string              `json:"password,omitempty"`
	URL          string              `json:"url,omitempty"`
	Notes        string              `json:"notes,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
	Favorite     bool                `json:"favorite,omitempty"`
	Expires      string              `json:"expires,omitempty"`
	CustomFields []vault.CustomField `json:"custom_fields,omitempty"`
}

func executeExport(cmd *cobra.Command, args []string) error {
	exportFormat = strings.ToLower(exportFormat)
	if exportFormat != formatJSON && exportFormat != formatCSV {
		return fmt.Errorf("invalid format '%s': must be '%s' or '%s'", exportFormat, formatJSON, formatCSV)
	}

	if err := ensureOpen(cmd.Context()); err != nil {
		return err
	}
	root, err := rootGroup()
	if err != nil {
		return err
	}
	scope := root
	if exportGroup != "" {
		if scope, err = cli.ResolveGroup(root, exportGroup); err != nil {
			return err
		}
	}

	entries, err := allEntries()
	if err != nil {
		return err
	}
	items, expires := exportItems(scope, entries)
	if len(items) == 0 {
		return errors.New("no entries to export")
	}

	var output []byte
	if exportFormat == formatCSV {
		var buf bytes.Buffer
		if err := importer.WriteLastPassCSV(&buf, items); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		lost := 0
		for _, item := range items {
			if importer.LostInCSV(item) {
				lost++
			}
		}
		if lost > 0 {
			fmt.Fprintf(os.Stderr, "Warning: tags and custom fields of %d entries are not part of the CSV format\n", lost)
		}
		output = buf.Bytes()
	} else {
		out := make([]exportEntry, len(items))
		for i, item := range items {
			out[i] = exportEntry{
				Title:        item.Title,
				Group:        strings.Join(item.GroupPath, cli.PathSeparator),
				Username:     item.Username,
				Password:     item.Password,
				URL:          item.URL,
				Notes:        item.Notes,
				Tags:         item.Tags,
				Favorite:     item.Favorite,
				Expires:      expires[i],
				CustomFields: item.CustomFields,
			}
		}
		if output, err = json.MarshalIndent(out, "", "  "); err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		output = append(output, '\n')
	}

	if exportOutput == "" {
		fmt.Fprint(os.Stderr, "WARNING: the output contains unencrypted passwords\n")
		_, err := os.Stdout.Write(output)
		return err
	}
	if err := writeSecureFile(exportOutput, output, exportForce); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d entries to %s\n", len(items), exportOutput)
	return nil
}

// exportItems converts the entries inside scope, with group paths relative
// to scope. The second result holds each item's expiry.
func exportItems(scope vault.GroupData, entries []vault.EntryData) ([]*importer.ImportedEntry, []string) {
	paths := make(map[string][]string)
	var walk func(g vault.GroupData, path []string)
	walk = func(g vault.GroupData, path []string) {
		paths[g.UUID] = path
		for _, c := range g.Children {
			walk(c, append(append([]string(nil), path...), c.Name))
		}
	}
	walk(scope, nil)

	var items []*importer.ImportedEntry
	var expires []string
	for _, e := range entries {
		path, ok := paths[e.GroupUUID]
		if !ok {
			continue
		}
		items = append(items, importer.FromEntryData(e, path))
		exp := ""
		if e.Expires && e.ExpiryTime != nil {
			exp = *e.ExpiryTime
		}
		expires = append(expires, exp)
	}
	return items, expires
}

// writeSecureFile writes content to a file with 0600 permissions. It
// refuses symlinks and, without force, existing files.
func writeSecureFile(path string, content []byte, force bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	var info os.FileInfo
	if lst, ok := fsys.(afero.Lstater); ok {
		info, _, err = lst.LstatIfPossible(absPath)
	} else {
		info, err = fsys.Stat(absPath)
	}
	switch {
	case err == nil:
		// Check for symlink attack
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("security: refusing to write to symlink: %s", absPath)
		}
		if !force {
			return fmt.Errorf("file already exists: %s (use --force to overwrite)", absPath)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to access %s: %w", absPath, err)
	}

	if err := fsys.MkdirAll(filepath.Dir(absPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// O_EXCL unless overwriting, to prevent TOCTOU
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := fsys.OpenFile(absPath, flags, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("file already exists: %s (use --force to overwrite)", absPath)
		}
		return fmt.Errorf("failed to create file: %w", err)
	}

	_, writeErr := f.Write(content)
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write file: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close file: %w", closeErr)
	}
	return nil
}
