package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/simplepm/internal/app"
	"github.com/forest6511/simplepm/internal/appdb"
	"github.com/forest6511/simplepm/internal/config"
	"github.com/forest6511/simplepm/internal/logging"
	"github.com/forest6511/simplepm/pkg/audit"
	"github.com/forest6511/simplepm/pkg/codec"
	"github.com/forest6511/simplepm/pkg/secret"
	"github.com/forest6511/simplepm/pkg/vault"
)

// envDatabase selects the database when --db is not given.
const envDatabase = "SIMPLEPM_DB"

// Long-running commands log at info level by default.
const (
	shellName     = "shell"
	mcpServerName = "mcp-server"
)

var errNoDatabase = errors.New("no database selected: use --db, set " + envDatabase + ", or run 'simplepm init'")

// Global flags
var (
	dbPath      string
	keyFilePath string
	logLevel    string
)

// Process state shared by every command. In the interactive shell it lives
// across commands.
var (
	fsys   afero.Fs = afero.NewOsFs()
	cfgDir string
	cfg    config.Config
	logger = logging.Discard()
	state  *appdb.Store
	a      *app.App

	inShell bool
)

var rootCmd = &cobra.Command{
	Use:   "simplepm",
	Short: "simplepm is a local, single-file password manager",
	Long: `A password manager that keeps groups and entries in one encrypted file.

The database is chosen with --db, the SIMPLEPM_DB environment variable, or
the most recently opened database.`,
	SilenceUsage: true,
	// PersistentPreRunE runs before every subcommand and builds the
	// application context. Inside the shell the context already exists.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if inShell {
			return nil
		}
		return setup(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the database file")
	rootCmd.PersistentFlags().StringVar(&keyFilePath, "key-file", "", "Path to a key file used together with the master password")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// setup loads configuration, the logger, the application state store and
// an empty application context.
func setup(cmd *cobra.Command) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	cfgDir = dir

	cfg, err = config.Load(fsys, cfgDir)
	if err != nil {
		return err
	}

	level := cfg.Level(defaultLevel(cmd))
	if logLevel != "" {
		if level, err = logging.ParseLevel(logLevel, level); err != nil {
			return err
		}
	}
	logger = logging.New(os.Stderr, level)

	if s, err := openState(cmd.Context()); err != nil {
		logger.Warn("application state unavailable", "err", err)
	} else {
		state = s
	}

	a = app.New(app.Options{
		Fs:     fsys,
		Dir:    cfgDir,
		Config: cfg,
		Logger: logger,
		State:  state,
		Source: auditSource(cmd),
	})
	return nil
}

// teardown closes the open database and the state store.
func teardown() {
	if a != nil {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close database", "err", err)
		}
	}
	if state != nil {
		if err := state.Close(); err != nil {
			logger.Warn("failed to close application state", "err", err)
		}
		state = nil
	}
}

// defaultLevel is warn for one-shot commands and info for long-running ones.
func defaultLevel(cmd *cobra.Command) slog.Level {
	switch cmd.Name() {
	case shellName, mcpServerName:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

func auditSource(cmd *cobra.Command) string {
	switch cmd.Name() {
	case shellName:
		return audit.SourceShell
	case mcpServerName:
		return audit.SourceMCP
	default:
		return audit.SourceCLI
	}
}

func openState(ctx context.Context) (*appdb.Store, error) {
	if err := fsys.MkdirAll(cfgDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", cfgDir, err)
	}
	return appdb.Open(ctx, filepath.Join(cfgDir, config.StateFile))
}

// databasePath resolves the database to open: --db, then SIMPLEPM_DB, then
// the most recently opened database.
func databasePath(ctx context.Context) (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	if p := os.Getenv(envDatabase); p != "" {
		return p, nil
	}
	if state != nil {
		recent, err := state.RecentDatabases(ctx, 1)
		if err != nil {
			logger.Warn("failed to read recent databases", "err", err)
		} else if len(recent) > 0 {
			if recent[0].KeyFile != "" && keyFilePath == "" {
				fmt.Fprintf(os.Stderr, "Warning: %s was last opened with a key file (use --key-file)\n", recent[0].Path)
			}
			return recent[0].Path, nil
		}
	}
	return "", errNoDatabase
}

// readKeyFile returns the --key-file contents, or nil when none is given.
func readKeyFile() ([]byte, error) {
	if keyFilePath == "" {
		return nil, nil
	}
	return codec.ReadKeyFile(fsys, keyFilePath)
}

// ensureOpen ensures a database is open.
// If none is, prompts for the master password and opens it.
func ensureOpen(ctx context.Context) error {
	if a.IsOpen() {
		return nil
	}

	path, err := databasePath(ctx)
	if err != nil {
		return err
	}
	keyFile, err := readKeyFile()
	if err != nil {
		return err
	}

	password, err := readSecret("Enter master password: ")
	if err != nil {
		return err
	}
	if err := a.Open(ctx, path, password, keyFile); err != nil {
		password.Destroy()
		if errors.Is(err, vault.ErrInvalidCredentials) {
			return errors.New("failed to open database: invalid password or key file")
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	return nil
}

// readSecret prompts on stderr and reads a line without echo. Piped input
// is read as a plain line.
func readSecret(prompt string) (secret.String, error) {
	if rl != nil {
		b, err := rl.ReadPassword(prompt)
		if err != nil {
			return secret.String{}, fmt.Errorf("failed to read password: %w", err)
		}
		return secret.FromBytes(b), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	if isTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return secret.String{}, fmt.Errorf("failed to read password: %w", err)
		}
		return secret.FromBytes(b), nil
	}
	line, err := readLine()
	if err != nil {
		return secret.String{}, err
	}
	return secret.New(line), nil
}

// readNewSecret prompts twice and checks both inputs match.
func readNewSecret(prompt string) (secret.String, error) {
	first, err := readSecret(prompt)
	if err != nil {
		return secret.String{}, err
	}
	second, err := readSecret("Confirm " + strings.ToLower(prompt[:1]) + prompt[1:])
	if err != nil {
		first.Destroy()
		return secret.String{}, err
	}
	defer second.Destroy()
	if !first.Equal(second) {
		first.Destroy()
		return secret.String{}, errors.New("passwords do not match")
	}
	return first, nil
}

var stdin = bufio.NewReader(os.Stdin)

// readLine reads a single line from stdin, trimming trailing newline
func readLine() (string, error) {
	if rl != nil {
		return shellReadLine()
	}
	line, err := stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	value := strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(value, "\r"), nil
}

// isTerminal returns true if the file descriptor is a terminal
func isTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// confirm asks a yes/no question. Anything but y or Y is no.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	response, err := readLine()
	if err != nil {
		return false
	}
	response = strings.TrimSpace(response)
	return response == "y" || response == "Y"
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
