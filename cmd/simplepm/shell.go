package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/forest6511/simplepm/internal/app"
	"github.com/forest6511/simplepm/internal/cli"
	"github.com/forest6511/simplepm/pkg/vault"
)

// historyFile keeps shell history in the config directory.
const historyFile = "history"

// rl owns the terminal while the shell runs. Prompts go through it.
var rl *readline.Instance

func init() {
	rootCmd.AddCommand(shellCmd)
}

var shellCmd = &cobra.Command{
	Use:   shellName,
	Short: "Run commands against an open database interactively",
	Long: `Open the database once and read commands from a prompt. Commands are
the same as on the command line without the program name:

  simplepm> entry list Work
  simplepm> entry copy "Mail account"
  simplepm> exit

Changes are saved after every command, as on the command line.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}

		root := cmd.Root()
		var err error
		rl, err = readline.NewEx(&readline.Config{
			Prompt:          shellPrompt(),
			HistoryFile:     filepath.Join(cfgDir, historyFile),
			AutoComplete:    shellCompleter(root),
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize readline: %w", err)
		}
		defer func() {
			rl.Close()
			rl = nil
		}()

		inShell = true
		root.SilenceErrors = true
		defer func() {
			inShell = false
			root.SilenceErrors = false
		}()

		fmt.Println("Type 'help' for commands, 'exit' to leave.")
		for {
			line, err := rl.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) {
					fmt.Println("Use 'exit' or 'quit' to leave the shell.")
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}

			done, err := runShellLine(root, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
			if done {
				return nil
			}
			rl.SetPrompt(shellPrompt())
		}
	},
}

// runShellLine executes one line of shell input. It reports whether the
// shell should exit.
func runShellLine(root *cobra.Command, line string) (bool, error) {
	args, err := cli.SplitArgs(strings.TrimSpace(line))
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, nil
	}
	switch args[0] {
	case "exit", "quit":
		return true, nil
	case shellName:
		return false, errors.New("already in the shell")
	}

	resetFlags(root)
	root.SetArgs(args)
	return false, root.ExecuteContext(root.Context())
}

// resetFlags restores every command's local flags to their defaults so a
// flag given to one shell command does not leak into the next. Global
// flags keep the values the shell was started with.
func resetFlags(root *cobra.Command) {
	global := root.PersistentFlags()
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			if global.Lookup(f.Name) == f {
				return
			}
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(root)
}

// shellPrompt shows the open database's name.
func shellPrompt() string {
	name, err := app.Query(a, func(db *vault.Database) (string, error) {
		return db.Name(), nil
	})
	if err != nil || name == "" {
		return "simplepm> "
	}
	return "simplepm:" + name + "> "
}

// shellReadLine reads a line of plain input through readline. Callers
// print their own question first.
func shellReadLine() (string, error) {
	rl.SetPrompt("")
	defer rl.SetPrompt(shellPrompt())
	line, err := rl.Readline()
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return line, nil
}
