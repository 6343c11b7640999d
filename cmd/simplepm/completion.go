package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/internal/cli"
	"github.com/forest6511/simplepm/internal/mcp"
	"github.com/forest6511/simplepm/pkg/importer"
	"github.com/forest6511/simplepm/pkg/secret"
)

// envCompletion opts in to completion that needs the open database.
const envCompletion = "SIMPLEPM_COMPLETION_ENABLED"

// maxRecentCompletions bounds --db suggestions.
const maxRecentCompletions = 10

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate completion script for your shell",
	Long: `To load completions:

Bash:
  $ source <(simplepm completion bash)

  # To load for each session (Linux):
  $ simplepm completion bash > ~/.local/share/bash-completion/completions/simplepm

Zsh:
  # Ensure completion is enabled:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # Generate completion:
  $ simplepm completion zsh > ~/.zsh/completions/_simplepm

Fish:
  $ simplepm completion fish > ~/.config/fish/completions/simplepm.fish

PowerShell:
  PS> simplepm completion powershell >> $PROFILE

--db completes recently opened databases.

Dynamic completion (entry titles and groups):
  Set SIMPLEPM_COMPLETION_ENABLED=1 and SIMPLEPM_PASSWORD to complete
  entries and groups from the database. Completion never prompts. The
  interactive shell always completes them.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// isDynamicCompletionEnabled checks if dynamic completion is opt-in enabled.
func isDynamicCompletionEnabled() bool {
	return os.Getenv(envCompletion) == "1"
}

// databaseForCompletion reports whether a database is open for completion.
// Outside the shell it opens one only when completion is enabled and the
// password is in the environment.
func databaseForCompletion(cmd *cobra.Command) bool {
	if a != nil && a.IsOpen() {
		return true
	}
	if inShell || !isDynamicCompletionEnabled() {
		return false
	}
	password := os.Getenv(mcp.EnvPassword)
	if password == "" {
		return false
	}
	if a == nil {
		if err := setup(cmd); err != nil {
			return false
		}
	}
	path, err := databasePath(cmd.Context())
	if err != nil {
		return false
	}
	keyFile, err := readKeyFile()
	if err != nil {
		return false
	}
	return a.Open(cmd.Context(), path, secret.New(password), keyFile) == nil
}

// filterPrefix keeps the candidates starting with prefix, ignoring case.
func filterPrefix(candidates []string, prefix string) []string {
	var out []string
	lower := strings.ToLower(prefix)
	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), lower) {
			out = append(out, c)
		}
	}
	return out
}

func entryCandidates() []string {
	entries, err := allEntries()
	if err != nil {
		return nil
	}
	return cli.Titles(entries)
}

func groupCandidates() []string {
	root, err := rootGroup()
	if err != nil {
		return nil
	}
	return cli.MapKeys(invert(cli.GroupPaths(root)))
}

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// completeEntries completes entry titles.
func completeEntries(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if !databaseForCompletion(cmd) {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return filterPrefix(entryCandidates(), toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeGroups completes group paths.
func completeGroups(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if !databaseForCompletion(cmd) {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return filterPrefix(groupCandidates(), toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeEntryThenFile completes an entry, then a local file.
func completeEntryThenFile(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return completeEntries(cmd, args, toComplete)
	}
	return nil, cobra.ShellCompDirectiveDefault
}

// completeEntriesThenGroup completes entries; from the second argument on
// groups are offered too, since the last one is the target group.
func completeEntriesThenGroup(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return completeEntries(cmd, args, toComplete)
	}
	if !databaseForCompletion(cmd) {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return filterPrefix(append(entryCandidates(), groupCandidates()...), toComplete), cobra.ShellCompDirectiveNoFileComp
}

// firstArg limits a completion function to the first positional argument.
func firstArg(fn cobra.CompletionFunc) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return fn(cmd, args, toComplete)
	}
}

// completeDatabases completes --db with recently opened databases. It
// needs only the application state, never the password.
func completeDatabases(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if state == nil {
		if a == nil {
			if err := setup(cmd); err != nil {
				return nil, cobra.ShellCompDirectiveDefault
			}
		}
		if state == nil {
			return nil, cobra.ShellCompDirectiveDefault
		}
	}
	recent, err := state.RecentDatabases(cmd.Context(), maxRecentCompletions)
	if err != nil || len(recent) == 0 {
		return nil, cobra.ShellCompDirectiveDefault
	}
	paths := make([]string, len(recent))
	for i, r := range recent {
		paths[i] = r.Path
	}
	return filterPrefix(paths, toComplete), cobra.ShellCompDirectiveDefault
}

// registerCompletionFunctions registers ValidArgsFunction for commands that support
// dynamic completion. Flags must already be defined, so it runs after every
// init.
func registerCompletionFunctions() {
	for _, c := range []*cobra.Command{entryShowCmd, entryEditCmd, entryCopyCmd, attachListCmd, checkDismissCmd, checkRestoreCmd} {
		c.ValidArgsFunction = firstArg(completeEntries)
	}
	entryDeleteCmd.ValidArgsFunction = completeEntries
	entryMoveCmd.ValidArgsFunction = completeEntriesThenGroup
	attachAddCmd.ValidArgsFunction = completeEntryThenFile
	attachGetCmd.ValidArgsFunction = firstArg(completeEntries)
	attachDeleteCmd.ValidArgsFunction = firstArg(completeEntries)

	for _, c := range []*cobra.Command{entryListCmd, groupListCmd, groupRenameCmd, groupDeleteCmd, groupReorderCmd} {
		c.ValidArgsFunction = firstArg(completeGroups)
	}
	groupMoveCmd.ValidArgsFunction = completeGroups

	for _, c := range []*cobra.Command{entryAddCmd, entryEditCmd, searchCmd, exportCmd} {
		_ = c.RegisterFlagCompletionFunc("group", completeGroups)
	}
	_ = runCmd.RegisterFlagCompletionFunc("entry", completeEntries)
	_ = entryAddCmd.RegisterFlagCompletionFunc("template", cobra.FixedCompletions(
		templateNames(), cobra.ShellCompDirectiveNoFileComp))
	_ = entryCopyCmd.RegisterFlagCompletionFunc("field", cobra.FixedCompletions(
		[]string{copyPassword, copyUsername, copyURL}, cobra.ShellCompDirectiveNoFileComp))
	_ = importCmd.RegisterFlagCompletionFunc("from", cobra.FixedCompletions(
		importer.ValidSources(), cobra.ShellCompDirectiveNoFileComp))
	_ = exportCmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(
		[]string{formatJSON, formatCSV}, cobra.ShellCompDirectiveNoFileComp))
	_ = auditExportCmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(
		[]string{"json", "csv"}, cobra.ShellCompDirectiveNoFileComp))
	_ = rootCmd.RegisterFlagCompletionFunc("db", completeDatabases)
}

// shellCompleter builds the shell's tab completion from the command tree.
// Arguments use the same completion functions as the command line.
func shellCompleter(root *cobra.Command) *readline.PrefixCompleter {
	items := append(commandItems(root), readline.PcItem("exit"), readline.PcItem("quit"))
	return readline.NewPrefixCompleter(items...)
}

func commandItems(c *cobra.Command) []readline.PrefixCompleterInterface {
	var items []readline.PrefixCompleterInterface
	for _, sub := range c.Commands() {
		if sub.Hidden || sub.Name() == shellName || sub.Name() == completionCmd.Name() {
			continue
		}
		children := commandItems(sub)
		if sub.ValidArgsFunction != nil {
			children = append(children, readline.PcItemDynamic(argCompleter(sub)))
		}
		items = append(items, readline.PcItem(sub.Name(), children...))
	}
	return items
}

// argCompleter adapts a command's ValidArgsFunction to readline. The
// candidates are quoted when needed so the shell splits them back into a
// single argument.
func argCompleter(c *cobra.Command) readline.DynamicCompleteFunc {
	return func(string) []string {
		candidates, _ := c.ValidArgsFunction(c, nil, "")
		out := make([]string, len(candidates))
		for i, s := range candidates {
			out[i] = shellQuote(s)
		}
		return out
	}
}

func shellQuote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'\\") {
		return strconv.Quote(s)
	}
	return s
}
