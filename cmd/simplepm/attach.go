package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/internal/app"
	"github.com/forest6511/simplepm/pkg/vault"
)

// maxAttachmentSize bounds files read by attach add.
const maxAttachmentSize = 64 * 1024 * 1024

// Attachment command flags
var (
	attachKey    string
	attachOutput string
	attachForce  bool
)

func init() {
	rootCmd.AddCommand(attachCmd)

	attachCmd.AddCommand(attachAddCmd)
	attachCmd.AddCommand(attachListCmd)
	attachCmd.AddCommand(attachGetCmd)
	attachCmd.AddCommand(attachDeleteCmd)

	attachAddCmd.Flags().StringVarP(&attachKey, "key", "k", "", "Attachment key (default: the file name)")
	attachGetCmd.Flags().StringVarP(&attachOutput, "output", "o", "", "Output file path (default: stdout)")
	attachGetCmd.Flags().BoolVarP(&attachForce, "force", "f", false, "Overwrite an existing output file")
}

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Entry attachment operations",
	Long: `Manage files attached to entries.

Attachment keys must be non-empty and must not contain '.'. Adding a key
that already exists replaces its content.`,
}

var attachAddCmd = &cobra.Command{
	Use:   "add <entry> <file>",
	Short: "Attach a file to an entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := fsys.Stat(args[1])
		if err != nil {
			return fmt.Errorf("failed to access file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", args[1])
		}
		if info.Size() > maxAttachmentSize {
			return fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxAttachmentSize)
		}
		data, err := afero.ReadFile(fsys, args[1])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		key := attachKey
		if key == "" {
			key = defaultAttachmentKey(args[1])
		}

		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		e, err := resolveEntry(args[0])
		if err != nil {
			return err
		}
		if err := a.AddAttachment(e.UUID, key, data); err != nil {
			return fmt.Errorf("failed to add attachment: %w", err)
		}
		fmt.Printf("Attached '%s' (%d bytes) to '%s'\n", key, len(data), e.Title)
		return nil
	},
}

// defaultAttachmentKey derives a key from a file name. Dots are not allowed
// in keys, so they become underscores.
func defaultAttachmentKey(path string) string {
	base := []rune(filepath.Base(path))
	for i, r := range base {
		if r == '.' {
			base[i] = '_'
		}
	}
	return string(base)
}

var attachListCmd = &cobra.Command{
	Use:   "list <entry>",
	Short: "List an entry's attachments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		e, err := resolveEntry(args[0])
		if err != nil {
			return err
		}
		attachments, err := app.Query(a, func(db *vault.Database) ([]vault.EntryAttachment, error) {
			return db.Attachments(e.UUID)
		})
		if err != nil {
			return err
		}
		if len(attachments) == 0 {
			fmt.Println("No attachments")
			return nil
		}
		for _, att := range attachments {
			fmt.Printf("%s  %d bytes\n", att.Key, len(att.Data))
		}
		return nil
	},
}

var attachGetCmd = &cobra.Command{
	Use:   "get <entry> <key>",
	Short: "Write an attachment to a file or stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		e, err := resolveEntry(args[0])
		if err != nil {
			return err
		}
		data, err := app.Query(a, func(db *vault.Database) ([]byte, error) {
			return db.Attachment(e.UUID, args[1])
		})
		if err != nil {
			return err
		}

		if attachOutput == "" {
			_, err := os.Stdout.Write(data)
			return err
		}
		if _, err := fsys.Stat(attachOutput); err == nil && !attachForce {
			return fmt.Errorf("output file exists: %s (use --force)", attachOutput)
		}
		if err := afero.WriteFile(fsys, attachOutput, data, 0600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %d bytes to %s\n", len(data), attachOutput)
		return nil
	},
}

var attachDeleteCmd = &cobra.Command{
	Use:   "delete <entry> <key>",
	Short: "Remove an attachment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		e, err := resolveEntry(args[0])
		if err != nil {
			return err
		}
		if err := a.DeleteAttachment(e.UUID, args[1]); err != nil {
			return fmt.Errorf("failed to delete attachment: %w", err)
		}
		fmt.Printf("Removed '%s' from '%s'\n", args[1], e.Title)
		return nil
	},
}
