package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/internal/app"
	"github.com/forest6511/simplepm/internal/cli"
	"github.com/forest6511/simplepm/pkg/passgen"
	"github.com/forest6511/simplepm/pkg/vault"
)

// Entry field names accepted by entry copy
const (
	copyPassword = "password"
	copyUsername = "username"
	copyURL      = "url"
)

// Entry command flags
var (
	entryJSON      bool
	entryFavorites bool
	entryReveal    bool
	entryHistory   bool
	entryForce     bool
	entryPrint     bool

	entryTitle           string
	entryGroup           string
	entryUsername        string
	entryURL             string
	entryNotes           string
	entryTags            string
	entryFavorite        bool
	entryExpires         string
	entryFields          []string
	entryProtectedFields []string
	entryGeneratePass    bool
	entryAskPassword     bool
	entryCopyField       string
	entryTemplateName    string
)

func init() {
	rootCmd.AddCommand(entryCmd)

	entryCmd.AddCommand(entryListCmd)
	entryCmd.AddCommand(entryShowCmd)
	entryCmd.AddCommand(entryAddCmd)
	entryCmd.AddCommand(entryEditCmd)
	entryCmd.AddCommand(entryDeleteCmd)
	entryCmd.AddCommand(entryMoveCmd)
	entryCmd.AddCommand(entryCopyCmd)

	entryListCmd.Flags().BoolVar(&entryJSON, "json", false, "Output in JSON format")
	entryListCmd.Flags().BoolVar(&entryFavorites, "favorites", false, "Only list favorite entries")

	entryShowCmd.Flags().BoolVar(&entryJSON, "json", false, "Output in JSON format (passwords included)")
	entryShowCmd.Flags().BoolVarP(&entryReveal, "reveal", "r", false, "Show passwords and protected fields")
	entryShowCmd.Flags().BoolVar(&entryHistory, "history", false, "Show previous versions")

	for _, c := range []*cobra.Command{entryAddCmd, entryEditCmd} {
		c.Flags().StringVarP(&entryGroup, "group", "g", "", "Group path or UUID")
		c.Flags().StringVarP(&entryUsername, "username", "u", "", "User name")
		c.Flags().StringVar(&entryURL, "url", "", "URL")
		c.Flags().StringVar(&entryNotes, "notes", "", "Notes")
		c.Flags().StringVar(&entryTags, "tags", "", "Comma-separated tags")
		c.Flags().BoolVar(&entryFavorite, "favorite", false, "Mark as favorite")
		c.Flags().StringVar(&entryExpires, "expires", "", "Expiry: "+vault.ExpiryLayout+", a duration like 90d, or never")
		c.Flags().StringArrayVar(&entryFields, "field", nil, "Custom field (name=value, can be repeated)")
		c.Flags().StringArrayVar(&entryProtectedFields, "protected-field", nil, "Protected custom field (name=value, can be repeated)")
		c.Flags().BoolVar(&entryGeneratePass, "generate", false, "Generate the password using the configured generator")
		c.Flags().BoolVarP(&entryAskPassword, "password", "p", false, "Prompt for the password")
	}
	entryAddCmd.Flags().StringVar(&entryTemplateName, "template", "", "Prompt for fields of a template ("+strings.Join(templateNames(), ", ")+")")
	entryEditCmd.Flags().StringVar(&entryTitle, "title", "", "New title")

	entryDeleteCmd.Flags().BoolVarP(&entryForce, "force", "f", false, "Skip confirmation prompt")

	entryCopyCmd.Flags().StringVar(&entryCopyField, "field", copyPassword, "Field to copy: password, username, url, or a custom field name")
	entryCopyCmd.Flags().BoolVar(&entryPrint, "print", false, "Print the value instead of using the clipboard")
}

// entryCmd is the parent command for entry operations.
var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Entry operations",
	Long: `Manage password entries.

Entries are addressed by UUID or title. Commands that accept several
entries also take glob patterns (e.g., "AWS *").`,
}

var entryListCmd = &cobra.Command{
	Use:   "list [group]",
	Short: "List entries",
	Long: `List entries directly inside a group, or every entry when no group
is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}

		var entries []vault.EntryData
		var err error
		switch {
		case entryFavorites:
			entries, err = app.Query(a, func(db *vault.Database) ([]vault.EntryData, error) {
				return db.FavoriteEntries(), nil
			})
		case len(args) > 0:
			g, rerr := resolveGroup(args[0])
			if rerr != nil {
				return rerr
			}
			entries, err = app.Query(a, func(db *vault.Database) ([]vault.EntryData, error) {
				return db.EntriesInGroup(g.UUID)
			})
		default:
			entries, err = allEntries()
		}
		if err != nil {
			return err
		}

		if entryJSON {
			return printJSON(redact(entries))
		}
		return printEntryTable(entries)
	},
}

// printEntryTable prints one line per entry with its group path.
func printEntryTable(entries []vault.EntryData) error {
	if len(entries) == 0 {
		fmt.Println("No entries found.")
		return nil
	}
	root, err := rootGroup()
	if err != nil {
		return err
	}
	paths := cli.GroupPaths(root)

	titleWidth := len("TITLE")
	userWidth := len("USERNAME")
	for _, e := range entries {
		titleWidth = max(titleWidth, len(e.Title))
		userWidth = max(userWidth, len(e.Username))
	}
	fmt.Printf("%-*s  %-*s  %s\n", titleWidth, "TITLE", userWidth, "USERNAME", "GROUP")
	for _, e := range entries {
		title := e.Title
		if e.IsFavorite {
			title += "*"
		}
		fmt.Printf("%-*s  %-*s  %s\n", titleWidth, title, userWidth, e.Username, paths[e.GroupUUID])
	}
	return nil
}

// redact clears password values for listings.
func redact(entries []vault.EntryData) []vault.EntryData {
	out := make([]vault.EntryData, len(entries))
	for i, e := range entries {
		e.Password = cli.Mask(e.Password)
		e.History = nil
		e.Attachments = nil
		fields := make([]vault.CustomField, len(e.CustomFields))
		for j, f := range e.CustomFields {
			if f.Protected {
				f.Value = cli.Mask(f.Value)
			}
			fields[j] = f
		}
		e.CustomFields = fields
		out[i] = e
	}
	return out
}

var entryShowCmd = &cobra.Command{
	Use:   "show <entry>",
	Short: "Show an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		e, err := resolveEntry(args[0])
		if err != nil {
			return err
		}

		if entryJSON {
			return printJSON(e)
		}

		root, err := rootGroup()
		if err != nil {
			return err
		}
		hide := func(s string) string {
			if entryReveal {
				return s
			}
			return cli.Mask(s)
		}

		fmt.Printf("Title:     %s\n", e.Title)
		fmt.Printf("UUID:      %s\n", e.UUID)
		fmt.Printf("Group:     %s\n", cli.GroupPaths(root)[e.GroupUUID])
		fmt.Printf("Username:  %s\n", e.Username)
		fmt.Printf("Password:  %s\n", hide(e.Password))
		if e.URL != "" {
			fmt.Printf("URL:       %s\n", e.URL)
		}
		if e.Tags != "" {
			fmt.Printf("Tags:      %s\n", e.Tags)
		}
		if e.IsFavorite {
			fmt.Println("Favorite:  yes")
		}
		if e.Expires && e.ExpiryTime != nil {
			fmt.Printf("Expires:   %s\n", *e.ExpiryTime)
		}
		printTime("Created:  ", e.Created)
		printTime("Modified: ", e.Modified)
		printTime("Accessed: ", e.LastAccessed)
		fmt.Printf("Used:      %d times\n", e.UsageCount)

		for _, f := range e.CustomFields {
			value := f.Value
			if f.Protected {
				value = hide(value)
			}
			fmt.Printf("  %s: %s\n", f.Name, value)
		}
		for _, att := range e.Attachments {
			fmt.Printf("  [attachment] %s (%d bytes)\n", att.Key, len(att.Data))
		}
		if e.Notes != "" {
			fmt.Printf("\nNotes:\n%s\n", e.Notes)
		}

		if entryHistory {
			fmt.Printf("\nHistory (%d versions):\n", len(e.History))
			for i := len(e.History) - 1; i >= 0; i-- {
				h := e.History[i]
				fmt.Printf("  %s  %s  %s  %s\n", h.Timestamp, h.Title, h.Username, hide(h.Password))
			}
		}
		return nil
	},
}

func printTime(label string, ts *string) {
	if ts != nil {
		fmt.Printf("%s %s\n", label, *ts)
	}
}

var entryAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add an entry",
	Long: `Add an entry. The password is generated with --generate, prompted for
with --password, or left empty.

Examples:
  simplepm entry add GitHub -g Work -u octocat --url https://github.com --generate
  simplepm entry add "Home WiFi" --password --field SSID=home-net
  simplepm entry add "AWS root" -g Work/Cloud -u admin -p --expires 90d
  simplepm entry add "Orders DB" --template database

--template prompts for the template's fields. Fields already given by a
flag are not prompted for.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}

		group, err := resolveGroup(entryGroup)
		if err != nil {
			return err
		}

		data := vault.EntryData{
			Title:      args[0],
			Username:   entryUsername,
			URL:        entryURL,
			Notes:      entryNotes,
			Tags:       entryTags,
			GroupUUID:  group.UUID,
			IsFavorite: entryFavorite,
		}
		if entryTemplateName != "" {
			t, err := lookupTemplate(entryTemplateName)
			if err != nil {
				return err
			}
			flagged := fieldFlagNames()
			values, err := promptTemplate(t, func(name string) bool {
				switch name {
				case copyUsername:
					return cmd.Flags().Changed("username")
				case copyPassword:
					return entryGeneratePass || entryAskPassword
				case copyURL:
					return cmd.Flags().Changed("url")
				}
				return flagged[name]
			})
			if err != nil {
				return err
			}
			applyTemplate(t, values, &data)
		}
		if err := applyEntryFlags(cmd, &data); err != nil {
			return err
		}

		id, err := a.CreateEntry(data)
		if err != nil {
			return fmt.Errorf("failed to create entry: %w", err)
		}
		fmt.Printf("Created entry '%s' (ID: %s)\n", data.Title, id)
		return nil
	},
}

var entryEditCmd = &cobra.Command{
	Use:   "edit <entry>",
	Short: "Change an entry",
	Long: `Change the given fields of an entry. Fields not named on the command
line keep their values. --field replaces a custom field of the same name;
a custom field with an empty value is removed. The previous version is
kept in the entry's history.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		target, err := resolveEntry(args[0])
		if err != nil {
			return err
		}
		password, err := entryFlagPassword()
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		data, err := a.EditEntry(target.UUID, func(data *vault.EntryData) error {
			if flags.Changed("title") {
				data.Title = entryTitle
			}
			if flags.Changed("username") {
				data.Username = entryUsername
			}
			if flags.Changed("url") {
				data.URL = entryURL
			}
			if flags.Changed("notes") {
				data.Notes = entryNotes
			}
			if flags.Changed("tags") {
				data.Tags = entryTags
			}
			if flags.Changed("favorite") {
				data.IsFavorite = entryFavorite
			}
			if password != nil {
				data.Password = *password
			}
			return applyEntryEdits(cmd, data)
		})
		if err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}

		if flags.Changed("group") {
			group, err := resolveGroup(entryGroup)
			if err != nil {
				return err
			}
			if err := a.MoveEntry(data.UUID, group.UUID); err != nil {
				return fmt.Errorf("failed to move entry: %w", err)
			}
		}
		fmt.Printf("Updated entry '%s'\n", data.Title)
		return nil
	},
}

// applyEntryFlags applies the password, expiry and custom field flags
// shared by add and edit.
func applyEntryFlags(cmd *cobra.Command, data *vault.EntryData) error {
	password, err := entryFlagPassword()
	if err != nil {
		return err
	}
	if password != nil {
		data.Password = *password
	}
	return applyEntryEdits(cmd, data)
}

// entryFlagPassword returns the password chosen by --generate or
// --password, prompting if needed. It returns nil when neither is set.
func entryFlagPassword() (*string, error) {
	if entryGeneratePass && entryAskPassword {
		return nil, errors.New("--generate and --password are mutually exclusive")
	}
	switch {
	case entryGeneratePass:
		password, err := passgen.Generate(cfg.Generator)
		if err != nil {
			return nil, fmt.Errorf("failed to generate password: %w", err)
		}
		return &password, nil
	case entryAskPassword:
		password, err := readSecret("Entry password: ")
		if err != nil {
			return nil, err
		}
		defer password.Destroy()
		value := password.Expose()
		return &value, nil
	}
	return nil, nil
}

// applyEntryEdits applies the expiry and custom field flags. It does not
// prompt.
func applyEntryEdits(cmd *cobra.Command, data *vault.EntryData) error {
	if cmd.Flags().Changed("expires") {
		if err := cli.ApplyExpiry(data, entryExpires, time.Now()); err != nil {
			return err
		}
	}

	var err error
	if data.CustomFields, err = mergeFieldFlags(data.CustomFields, entryFields, false); err != nil {
		return err
	}
	if data.CustomFields, err = mergeFieldFlags(data.CustomFields, entryProtectedFields, true); err != nil {
		return err
	}
	return nil
}

// mergeFieldFlags applies name=value flags to fields. An existing field of
// the same name is replaced in place; an empty value removes it.
func mergeFieldFlags(fields []vault.CustomField, flags []string, protected bool) ([]vault.CustomField, error) {
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field format %q (expected name=value)", f)
		}
		if vault.IsStandardField(name) {
			return nil, fmt.Errorf("field %q is a standard field: use its own flag", name)
		}

		idx := -1
		for i := range fields {
			if fields[i].Name == name {
				idx = i
				break
			}
		}
		switch {
		case value == "" && idx >= 0:
			fields = append(fields[:idx], fields[idx+1:]...)
		case value == "":
		case idx >= 0:
			fields[idx] = vault.CustomField{Name: name, Value: value, Protected: protected}
		default:
			fields = append(fields, vault.CustomField{Name: name, Value: value, Protected: protected})
		}
	}
	return fields, nil
}

var entryDeleteCmd = &cobra.Command{
	Use:   "delete <entry>...",
	Short: "Delete entries",
	Long: `Delete entries by UUID, title or glob pattern.

Examples:
  simplepm entry delete GitHub
  simplepm entry delete "old-*" --force`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		all, err := allEntries()
		if err != nil {
			return err
		}
		matches, err := cli.MatchAll(args, all)
		if err != nil {
			return err
		}

		if !entryForce {
			fmt.Printf("The following %d entries will be deleted:\n", len(matches))
			for _, e := range matches {
				fmt.Printf("  - %s\n", e.Title)
			}
			if !confirm("Are you sure?") {
				fmt.Println("Aborted")
				return nil
			}
		}

		var failed int
		for _, e := range matches {
			if err := a.DeleteEntry(e.UUID); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to delete '%s': %v\n", e.Title, err)
				failed++
				continue
			}
		}
		fmt.Printf("Deleted %d entries\n", len(matches)-failed)
		if failed > 0 {
			return fmt.Errorf("%d entries could not be deleted", failed)
		}
		return nil
	},
}

var entryMoveCmd = &cobra.Command{
	Use:   "move <entry>... <group>",
	Short: "Move entries to another group",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		group, err := resolveGroup(args[len(args)-1])
		if err != nil {
			return err
		}
		all, err := allEntries()
		if err != nil {
			return err
		}
		matches, err := cli.MatchAll(args[:len(args)-1], all)
		if err != nil {
			return err
		}

		for _, e := range matches {
			if err := a.MoveEntry(e.UUID, group.UUID); err != nil {
				return fmt.Errorf("failed to move '%s': %w", e.Title, err)
			}
		}
		fmt.Printf("Moved %d entries to '%s'\n", len(matches), group.Name)
		return nil
	},
}

var entryCopyCmd = &cobra.Command{
	Use:   "copy <entry>",
	Short: "Copy an entry's password or another field to the clipboard",
	Long: `Copy a field of an entry to the system clipboard and record the use
on the entry (usage count and last access time).

The clipboard is readable by every process of the user.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		e, err := resolveEntry(args[0])
		if err != nil {
			return err
		}
		value, err := entryField(e, entryCopyField)
		if err != nil {
			return err
		}

		if entryPrint {
			fmt.Println(value)
		} else {
			if err := copyToClipboard(value); err != nil {
				return fmt.Errorf("failed to copy to clipboard: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Copied %s of '%s' to clipboard\n", entryCopyField, e.Title)
		}

		if err := a.TouchEntry(e.UUID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to record entry use: %v\n", err)
		}
		return nil
	},
}

// entryField returns a standard or custom field value by name.
func entryField(e vault.EntryData, name string) (string, error) {
	switch strings.ToLower(name) {
	case copyPassword:
		return e.Password, nil
	case copyUsername:
		return e.Username, nil
	case copyURL:
		return e.URL, nil
	}
	for _, f := range e.CustomFields {
		if f.Name == name {
			return f.Value, nil
		}
	}
	return "", fmt.Errorf("entry '%s' has no field %q", e.Title, name)
}

func allEntries() ([]vault.EntryData, error) {
	return app.Query(a, func(db *vault.Database) ([]vault.EntryData, error) {
		return db.AllEntries(), nil
	})
}

func resolveEntry(selector string) (vault.EntryData, error) {
	all, err := allEntries()
	if err != nil {
		return vault.EntryData{}, err
	}
	return cli.ResolveEntry(selector, all)
}
