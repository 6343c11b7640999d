package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/internal/cli"
	"github.com/forest6511/simplepm/pkg/importer"
)

// maxImportSize bounds export files read by import.
const maxImportSize = 100 * 1024 * 1024

// Import command flags
var (
	importFrom    string
	importFlatten bool
	importDryRun  bool
	importTag     string
	importTitles  []string
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importFrom, "from", "", "Import source: "+strings.Join(importer.ValidSources(), ", "))
	importCmd.Flags().BoolVar(&importFlatten, "flatten", false, "Put all entries directly into the root group")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without making changes")
	importCmd.Flags().StringVar(&importTag, "tag", "", "Add tag to all imported entries")
	importCmd.Flags().StringSliceVarP(&importTitles, "title", "t", nil, "Titles to import (glob pattern supported)")
	_ = importCmd.MarkFlagRequired("from")
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import entries from another password manager",
	Long: `Import entries from an unencrypted export of another password manager.
Folders become groups unless --flatten is given. Entries are always added;
existing entries are never overwritten.

Examples:
  # Import a Bitwarden JSON export
  simplepm import bitwarden.json --from bitwarden

  # Import a LastPass CSV export without folders
  simplepm import lastpass.csv --from lastpass --flatten

  # Preview a 1Password CSV import
  simplepm import 1password.csv --from 1password --dry-run

  # Import selected entries and tag them
  simplepm import export.json --from bitwarden -t "AWS*" --tag imported`,
	Args: cobra.ExactArgs(1),
	RunE: executeImport,
}

func executeImport(cmd *cobra.Command, args []string) error {
	source := importer.Source(strings.ToLower(importFrom))
	parser, err := importer.GetParser(source)
	if err != nil {
		return fmt.Errorf("invalid --from value '%s': must be one of %v", importFrom, importer.ValidSources())
	}

	data, err := readImportFile(args[0])
	if err != nil {
		return err
	}

	result, err := parser.Parse(data, importer.ParseOptions{FlattenFolders: importFlatten})
	if err != nil {
		return fmt.Errorf("failed to parse %s file: %w", source, err)
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(os.Stderr, "Skipped: %s (%s)\n", skipped.OriginalName, skipped.Reason)
	}

	if len(importTitles) > 0 {
		result.Entries, err = filterImportedEntries(result.Entries, importTitles)
		if err != nil {
			return err
		}
	}
	if len(result.Entries) == 0 {
		fmt.Println("No entries found in file")
		return nil
	}

	if importTag != "" {
		for _, e := range result.Entries {
			e.Tags = append(e.Tags, importTag)
		}
	}

	if importDryRun {
		for _, e := range result.Entries {
			fmt.Printf("[dry-run] Would import: %s\n", importedPath(e))
		}
		fmt.Printf("\n%d entries would be imported\n", len(result.Entries))
		return nil
	}

	if err := ensureOpen(cmd.Context()); err != nil {
		return err
	}
	applied, err := a.Import(result)
	if err != nil {
		return fmt.Errorf("import failed, database left unchanged: %w", err)
	}

	fmt.Printf("\nImport summary:\n")
	fmt.Printf("  Entries created: %d\n", applied.EntriesCreated)
	if applied.GroupsCreated > 0 {
		fmt.Printf("  Groups created:  %d\n", applied.GroupsCreated)
	}
	if len(result.Skipped) > 0 {
		fmt.Printf("  Skipped:         %d\n", len(result.Skipped))
	}
	return nil
}

// readImportFile reads an export file, refusing symlinks and oversized
// files.
func readImportFile(filePath string) ([]byte, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	var info os.FileInfo
	if lst, ok := fsys.(afero.Lstater); ok {
		info, _, err = lst.LstatIfPossible(absPath)
	} else {
		info, err = fsys.Stat(absPath)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to access file: %w", err)
	}

	// Security check: reject symlinks
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("security: refusing to read symlink: %s", absPath)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", filePath)
	}
	if info.Size() > maxImportSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxImportSize)
	}

	data, err := afero.ReadFile(fsys, absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// filterImportedEntries keeps the entries whose title matches one of the
// patterns. A pattern without glob characters must match some title
// exactly.
func filterImportedEntries(entries []*importer.ImportedEntry, patterns []string) ([]*importer.ImportedEntry, error) {
	matched := make([]bool, len(entries))
	for _, pattern := range patterns {
		// Validate pattern syntax
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}

		found := false
		for i, e := range entries {
			ok := e.Title == pattern
			if cli.IsPattern(pattern) {
				ok, _ = path.Match(pattern, e.Title)
			}
			if ok {
				matched[i] = true
				found = true
			}
		}
		if !found && !cli.IsPattern(pattern) {
			return nil, fmt.Errorf("title '%s' not found in import file", pattern)
		}
	}

	var filtered []*importer.ImportedEntry
	for i, e := range entries {
		if matched[i] {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("no titles match the specified patterns")
	}
	return filtered, nil
}

func importedPath(e *importer.ImportedEntry) string {
	if len(e.GroupPath) == 0 {
		return e.Title
	}
	return strings.Join(e.GroupPath, "/") + "/" + e.Title
}
