package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/internal/app"
	"github.com/forest6511/simplepm/pkg/codec"
	"github.com/forest6511/simplepm/pkg/crypto"
	"github.com/forest6511/simplepm/pkg/vault"
)

// Database command flags
var (
	initNewKeyFile bool
	infoJSON       bool
	mergeCheckOnly bool

	kdfJSON        bool
	kdfAlgorithm   string
	kdfIterations  uint64
	kdfMemoryMiB   uint64
	kdfParallelism uint32

	recentJSON bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(saveAsCmd)
	rootCmd.AddCommand(passwordCmd)
	rootCmd.AddCommand(kdfCmd)
	rootCmd.AddCommand(recentCmd)

	passwordCmd.AddCommand(passwordChangeCmd)

	kdfCmd.AddCommand(kdfInfoCmd)
	kdfCmd.AddCommand(kdfUpgradeCmd)
	kdfCmd.AddCommand(kdfSetCmd)

	recentCmd.AddCommand(recentForgetCmd)

	initCmd.Flags().BoolVar(&initNewKeyFile, "new-key-file", false, "Generate the --key-file before creating the database")
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Output in JSON format")
	mergeCmd.Flags().BoolVar(&mergeCheckOnly, "check", false, "Only report whether the file changed on disk")

	kdfInfoCmd.Flags().BoolVar(&kdfJSON, "json", false, "Output in JSON format")
	kdfSetCmd.Flags().StringVar(&kdfAlgorithm, "algorithm", crypto.AlgArgon2id, "KDF algorithm: argon2id, argon2i, aes-kdf")
	kdfSetCmd.Flags().Uint64Var(&kdfIterations, "iterations", crypto.DefaultIterations, "Iterations (rounds for aes-kdf)")
	kdfSetCmd.Flags().Uint64Var(&kdfMemoryMiB, "memory-mib", crypto.DefaultMemory/crypto.MiB, "Memory cost in MiB (Argon2 only)")
	kdfSetCmd.Flags().Uint32Var(&kdfParallelism, "parallelism", crypto.DefaultParallelism, "Parallelism (Argon2 only)")

	recentCmd.Flags().BoolVar(&recentJSON, "json", false, "Output in JSON format")
}

// initCmd creates a new database
var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a new password database",
	Long: `Create a new, empty password database.

The root group is named after the file. The database is protected by the
master password and, with --key-file, by a key file as well.

Examples:
  simplepm init ~/vaults/personal.spdb
  simplepm init ~/vaults/work.spdb --key-file ~/work.key --new-key-file`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := dbPath
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			return errors.New("database path required: simplepm init <path>")
		}
		if !strings.HasSuffix(path, vault.FileExtension) {
			fmt.Fprintf(os.Stderr, "Warning: %s does not end in %s\n", path, vault.FileExtension)
		}
		if _, err := fsys.Stat(path); err == nil {
			return fmt.Errorf("database already exists: %s", path)
		}

		if initNewKeyFile {
			if keyFilePath == "" {
				return errors.New("--new-key-file requires --key-file")
			}
			if err := codec.GenerateKeyFile(fsys, keyFilePath); err != nil {
				return err
			}
			fmt.Printf("Key file written to %s\n", keyFilePath)
		}
		keyFile, err := readKeyFile()
		if err != nil {
			return err
		}

		fmt.Println("Creating new database...")
		password, err := readNewSecret("Enter master password: ")
		if err != nil {
			return err
		}

		result := vault.ValidateMasterPassword(password.Expose())
		if !result.Valid {
			password.Destroy()
			return fmt.Errorf("password validation failed: %s", result.Warnings[0])
		}
		fmt.Printf("Password strength: %s\n", result.Strength)
		for _, warning := range result.Warnings {
			fmt.Printf("Warning: %s\n", warning)
		}

		if err := a.Create(cmd.Context(), path, password, keyFile); err != nil {
			password.Destroy()
			if errors.Is(err, app.ErrAlreadyOpen) {
				return errors.New("a database is already open: close the shell session first")
			}
			return fmt.Errorf("failed to create database: %w", err)
		}

		fmt.Printf("Database created at %s\n", path)
		return nil
	},
}

// databaseInfo is the output of the info command.
type databaseInfo struct {
	Path        string        `json:"path"`
	Name        string        `json:"name"`
	Entries     int           `json:"entries"`
	Groups      int           `json:"groups"`
	Attachments int           `json:"attachments"`
	KDF         vault.KdfInfo `json:"kdf"`
	AuditDir    string        `json:"audit_dir,omitempty"`
}

// infoCmd describes the open database
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show database details",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}

		info, err := app.Query(a, func(db *vault.Database) (databaseInfo, error) {
			return databaseInfo{
				Path:        db.Path(),
				Name:        db.Name(),
				Entries:     len(db.AllEntries()),
				Groups:      countGroups(db.RootGroup()),
				Attachments: db.AttachmentCount(),
				KDF:         db.KdfInfo(),
			}, nil
		})
		if err != nil {
			return err
		}
		if l := a.Audit(); l != nil {
			info.AuditDir = l.Path()
		}

		if infoJSON {
			return printJSON(info)
		}
		fmt.Printf("Path:        %s\n", info.Path)
		fmt.Printf("Name:        %s\n", info.Name)
		fmt.Printf("Entries:     %d\n", info.Entries)
		fmt.Printf("Groups:      %d\n", info.Groups)
		fmt.Printf("Attachments: %d\n", info.Attachments)
		fmt.Printf("KDF:         %s\n", formatKDF(info.KDF))
		if info.AuditDir != "" {
			fmt.Printf("Audit log:   %s\n", info.AuditDir)
		}
		return nil
	},
}

func countGroups(g vault.GroupData) int {
	n := 1
	for _, c := range g.Children {
		n += countGroups(c)
	}
	return n
}

func formatKDF(k vault.KdfInfo) string {
	var b strings.Builder
	b.WriteString(k.KdfType)
	if k.Iterations != nil {
		if k.KdfType == "AES" {
			fmt.Fprintf(&b, ", %d rounds", *k.Iterations)
		} else {
			fmt.Fprintf(&b, ", %d iterations", *k.Iterations)
		}
	}
	if k.Memory != nil {
		fmt.Fprintf(&b, ", %d MiB", *k.Memory/crypto.MiB)
	}
	if k.Parallelism != nil {
		fmt.Fprintf(&b, ", parallelism %d", *k.Parallelism)
	}
	if k.IsWeak {
		b.WriteString(" (weak)")
	}
	return b.String()
}

// mergeCmd reconciles the open database with changes written by another process
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge changes made to the file by another process",
	Long: `Merge changes written to the database file since it was opened.

For each entry present on both sides the most recently modified version
wins. Entries and groups only present on disk are added. Every mutating
command merges automatically before it saves; this command is for long
running sessions such as the shell.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}

		changed, err := a.CheckForChanges()
		if err != nil {
			return fmt.Errorf("failed to check for changes: %w", err)
		}
		if !changed {
			fmt.Println("No external changes")
			return nil
		}
		if mergeCheckOnly {
			fmt.Println("The database file changed on disk")
			return nil
		}

		if err := a.Merge(); err != nil {
			return fmt.Errorf("failed to merge: %w", err)
		}
		if err := a.Save(); err != nil {
			return fmt.Errorf("failed to save merged database: %w", err)
		}
		fmt.Println("External changes merged")
		return nil
	},
}

// saveAsCmd writes the open database to a new file
var saveAsCmd = &cobra.Command{
	Use:   "save-as <path>",
	Short: "Write the database to a new file",
	Long: `Write the open database to a new file. The new file becomes the open
database for the rest of the shell session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		if _, err := fsys.Stat(args[0]); err == nil && !confirm(fmt.Sprintf("%s exists. Overwrite?", args[0])) {
			fmt.Println("Aborted")
			return nil
		}
		if err := a.SaveAs(args[0]); err != nil {
			return fmt.Errorf("failed to save database: %w", err)
		}
		fmt.Printf("Database saved to %s\n", args[0])
		return nil
	},
}

// passwordCmd is the parent command for password operations.
var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Master password operations",
}

// passwordChangeCmd changes the master password.
var passwordChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the master password",
	Long: `Change the master password. The key file, if any, stays the same.

The database is re-encrypted and saved immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}

		fmt.Println("Changing master password...")
		password, err := readNewSecret("Enter new password: ")
		if err != nil {
			return err
		}

		result := vault.ValidateMasterPassword(password.Expose())
		if !result.Valid {
			password.Destroy()
			return fmt.Errorf("password validation failed: %s", result.Warnings[0])
		}
		fmt.Printf("Password strength: %s\n", result.Strength)
		for _, warning := range result.Warnings {
			fmt.Printf("Warning: %s\n", warning)
		}

		if err := a.ChangeCredential(password); err != nil {
			return fmt.Errorf("failed to change password: %w", err)
		}
		fmt.Println("Master password changed successfully")
		return nil
	},
}

// kdfCmd is the parent command for key derivation settings.
var kdfCmd = &cobra.Command{
	Use:   "kdf",
	Short: "Key derivation settings",
}

var kdfInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show key derivation parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		info, err := app.Query(a, func(db *vault.Database) (vault.KdfInfo, error) {
			return db.KdfInfo(), nil
		})
		if err != nil {
			return err
		}
		if kdfJSON {
			return printJSON(info)
		}
		fmt.Println(formatKDF(info))
		if info.IsWeak {
			fmt.Println("Run 'simplepm kdf upgrade' to switch to the recommended parameters.")
		}
		return nil
	},
}

var kdfUpgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Switch to the recommended Argon2id parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		if err := a.UpgradeKDF(); err != nil {
			return fmt.Errorf("failed to upgrade KDF: %w", err)
		}
		fmt.Println("KDF upgraded to", formatKDF(vault.KdfInfoFor(crypto.DefaultKDF())))
		return nil
	},
}

var kdfSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set explicit key derivation parameters",
	Long: `Set explicit key derivation parameters and re-encrypt the database.

Examples:
  simplepm kdf set --iterations 4 --memory-mib 256 --parallelism 4
  simplepm kdf set --algorithm aes-kdf --iterations 600000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := crypto.KDFParams{
			Algorithm:  strings.ToLower(kdfAlgorithm),
			Iterations: kdfIterations,
		}
		if p.Algorithm != crypto.AlgAESKDF {
			p.Memory = kdfMemoryMiB * crypto.MiB
			p.Parallelism = kdfParallelism
		}
		if err := p.Validate(); err != nil {
			return err
		}

		info := vault.KdfInfoFor(p)
		if info.IsWeak {
			fmt.Fprintf(os.Stderr, "Warning: %s is below the recommended strength\n", formatKDF(info))
		}

		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		if err := a.SetKDF(p); err != nil {
			return fmt.Errorf("failed to set KDF: %w", err)
		}
		fmt.Println("KDF set to", formatKDF(info))
		return nil
	},
}

// recentCmd lists recently opened databases without opening any.
var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently opened databases",
	RunE: func(cmd *cobra.Command, args []string) error {
		recent, err := a.RecentDatabases(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list recent databases: %w", err)
		}
		if recentJSON {
			return printJSON(recent)
		}
		if len(recent) == 0 {
			fmt.Println("No recent databases")
			return nil
		}
		for _, r := range recent {
			line := fmt.Sprintf("%s  %s", r.OpenedAt.Local().Format("2006-01-02 15:04"), r.Path)
			if r.KeyFile != "" {
				line += "  (key file)"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var recentForgetCmd = &cobra.Command{
	Use:   "forget <path>",
	Short: "Remove a database from the recent list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if state == nil {
			return app.ErrNoState
		}
		if err := state.ForgetRecent(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to forget %s: %w", args[0], err)
		}
		fmt.Printf("Removed %s from recent databases\n", args[0])
		return nil
	},
}
