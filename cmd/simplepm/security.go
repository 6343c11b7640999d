package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/internal/app"
	"github.com/forest6511/simplepm/pkg/security"
	"github.com/forest6511/simplepm/pkg/vault"
)

// Security command flags
var (
	searchGroup string
	searchJSON  bool

	statsJSON bool

	checkVerbose   bool
	checkJSON      bool
	checkLimit     int
	checkResponses string
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(checkCmd)

	checkCmd.AddCommand(checkBreachesCmd)
	checkCmd.AddCommand(checkDismissCmd)
	checkCmd.AddCommand(checkRestoreCmd)
	checkCmd.AddCommand(checkDismissedCmd)

	searchCmd.Flags().StringVarP(&searchGroup, "group", "g", "", "Only search this group and its subgroups")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")

	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output in JSON format")

	checkCmd.Flags().BoolVarP(&checkVerbose, "verbose", "v", false, "Show all details including suggestions")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output in JSON format")
	checkCmd.Flags().IntVar(&checkLimit, "limit", 0, "Maximum issues per category (0 for all)")

	checkBreachesCmd.Flags().StringVar(&checkResponses, "responses", "", "Directory of saved range-query responses named <PREFIX>.txt")
	checkBreachesCmd.Flags().BoolVar(&checkJSON, "json", false, "Output in JSON format")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search entries",
	Long: `Find entries whose title, user name, URL, notes or tags contain the
query, ignoring case.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		scope := ""
		if searchGroup != "" {
			g, err := resolveGroup(searchGroup)
			if err != nil {
				return err
			}
			scope = g.UUID
		}

		entries, err := app.Query(a, func(db *vault.Database) ([]vault.EntryData, error) {
			return db.Search(args[0], scope)
		})
		if err != nil {
			return err
		}
		if searchJSON {
			return printJSON(redact(entries))
		}
		return printEntryTable(entries)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics and health score",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		st, err := a.Stats()
		if err != nil {
			return fmt.Errorf("failed to compute statistics: %w", err)
		}
		if statsJSON {
			return printJSON(st)
		}

		fmt.Printf("Health score:      %d/100 %s\n\n", st.HealthScore, progressBar(st.HealthScore, 100))
		fmt.Printf("Entries:           %d\n", st.TotalEntries)
		fmt.Printf("Groups:            %d\n", st.TotalGroups)
		fmt.Printf("Favorites:         %d\n", st.FavoriteEntries)
		fmt.Printf("Weak passwords:    %d\n", st.WeakPasswords)
		fmt.Printf("Reused passwords:  %d\n", st.ReusedPasswords)
		fmt.Printf("Old passwords:     %d\n", st.OldPasswords)
		fmt.Printf("Expired entries:   %d\n", st.ExpiredEntries)
		fmt.Printf("Average strength:  %.1f bits (%s)\n", st.AveragePasswordStrength,
			security.StrengthFromEntropy(st.AveragePasswordStrength))
		return nil
	},
}

// checkCmd prints the detailed security report.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Analyze password health",
	Long: `Analyze the passwords in the database and list what to fix.

Reported issues:
  - weak passwords (low estimated entropy)
  - passwords shared by several entries
  - passwords not changed for a long time
  - entries that expired or expire soon

Example:
  simplepm check              # Show score and issues
  simplepm check --verbose    # Also show suggestions
  simplepm check --json       # Output in JSON format`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		report, err := app.Query(a, func(db *vault.Database) (*security.Report, error) {
			return db.Report(true, checkLimit)
		})
		if err != nil {
			return fmt.Errorf("failed to build security report: %w", err)
		}
		if checkJSON {
			return printJSON(report)
		}
		printReport(report, checkVerbose)
		return nil
	},
}

// printReport outputs the security report as formatted text.
func printReport(report *security.Report, verbose bool) {
	var rating string
	switch {
	case report.Score >= 90:
		rating = "Excellent"
	case report.Score >= 70:
		rating = "Good"
	case report.Score >= 50:
		rating = "Fair"
	default:
		rating = "Needs Attention"
	}
	fmt.Printf("Security Score: %d/100 (%s) %s\n\n", report.Score, rating, progressBar(report.Score, 100))

	if len(report.Issues) == 0 {
		fmt.Println("No issues found.")
	} else {
		fmt.Printf("Issues (%d):\n", len(report.Issues))
		for i, issue := range report.Issues {
			label := strings.ToUpper(string(issue.Type))
			subject := ""
			if issue.Title != "" {
				subject = fmt.Sprintf(" %q", issue.Title)
			} else if len(issue.EntryIDs) > 0 {
				subject = fmt.Sprintf(" %d entries", len(issue.EntryIDs))
			}
			fmt.Printf("  %d. [%s]%s: %s\n", i+1, label, subject, issue.Description)
		}
	}
	fmt.Println()

	if len(report.Suggestions) > 0 && verbose {
		fmt.Println("Suggestions:")
		for _, suggestion := range report.Suggestions {
			fmt.Printf("  - %s\n", suggestion)
		}
		fmt.Println()
	}
	if report.Limited {
		fmt.Println("Some issues were left out; raise --limit to see all.")
	}
}

// progressBar creates a simple ASCII progress bar.
func progressBar(value, maxVal int) string {
	width := 20
	filled := value * width / maxVal
	filled = min(max(filled, 0), width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// breachResult is one entry found in a range-query response.
type breachResult struct {
	EntryID string `json:"entry_id"`
	Title   string `json:"title"`
	Count   int    `json:"count"`
}

var checkBreachesCmd = &cobra.Command{
	Use:   "breaches",
	Short: "Plan or evaluate k-anonymity breach lookups",
	Long: `Group the passwords of the database by the first five hex characters
of their SHA-1 hash. Only these prefixes ever need to leave the machine;
dismissed entries are left out.

Without --responses the command prints the prefixes to query. With
--responses it reads saved range-query answers (one <PREFIX>.txt file of
SUFFIX:COUNT lines per prefix) and lists the entries they contain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		plan, err := a.BreachPlan(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to plan breach check: %w", err)
		}

		if checkResponses == "" {
			prefixes := make([]string, len(plan))
			candidates := 0
			for i, b := range plan {
				prefixes[i] = b.Prefix
				candidates += len(b.Candidates)
			}
			if checkJSON {
				return printJSON(prefixes)
			}
			fmt.Printf("%d passwords in %d range queries:\n", candidates, len(plan))
			for _, p := range prefixes {
				fmt.Println(p)
			}
			return nil
		}

		results, missing, err := matchBreachResponses(plan, checkResponses)
		if err != nil {
			return err
		}
		if checkJSON {
			return printJSON(results)
		}
		if missing > 0 {
			fmt.Printf("Warning: no saved response for %d of %d prefixes\n", missing, len(plan))
		}
		if len(results) == 0 {
			fmt.Println("No breached passwords found.")
			return nil
		}
		fmt.Printf("Breached passwords (%d):\n", len(results))
		for _, r := range results {
			fmt.Printf("  - %s: seen %d times\n", r.Title, r.Count)
		}
		return nil
	},
}

// matchBreachResponses evaluates saved range-query responses against the
// plan. It returns the hits and the number of prefixes without a response.
func matchBreachResponses(plan []security.BreachBatch, dir string) ([]breachResult, int, error) {
	titles, err := app.Query(a, func(db *vault.Database) (map[string]string, error) {
		out := make(map[string]string)
		for _, e := range db.AllEntries() {
			out[e.UUID] = e.Title
		}
		return out, nil
	})
	if err != nil {
		return nil, 0, err
	}

	var results []breachResult
	missing := 0
	for _, batch := range plan {
		body, err := afero.ReadFile(fsys, filepath.Join(dir, batch.Prefix+".txt"))
		if errors.Is(err, fs.ErrNotExist) {
			missing++
			continue
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read response for %s: %w", batch.Prefix, err)
		}
		for id, count := range security.MatchBreachResponse(batch, string(body)) {
			results = append(results, breachResult{EntryID: id, Title: titles[id], Count: count})
		}
	}
	return results, missing, nil
}

var checkDismissCmd = &cobra.Command{
	Use:   "dismiss <entry>",
	Short: "Hide an entry from breach checks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		e, err := resolveEntry(args[0])
		if err != nil {
			return err
		}
		if err := a.DismissBreach(cmd.Context(), e.UUID); err != nil {
			return fmt.Errorf("failed to dismiss breach warning: %w", err)
		}
		fmt.Printf("Breach warnings for '%s' dismissed\n", e.Title)
		return nil
	},
}

var checkRestoreCmd = &cobra.Command{
	Use:   "restore <entry>",
	Short: "Include a dismissed entry in breach checks again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		e, err := resolveEntry(args[0])
		if err != nil {
			return err
		}
		if err := a.ClearDismissedBreach(cmd.Context(), e.UUID); err != nil {
			return fmt.Errorf("failed to restore breach warning: %w", err)
		}
		fmt.Printf("Breach warnings for '%s' restored\n", e.Title)
		return nil
	},
}

var checkDismissedCmd = &cobra.Command{
	Use:   "dismissed",
	Short: "List entries excluded from breach checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureOpen(cmd.Context()); err != nil {
			return err
		}
		ids, err := a.DismissedBreaches(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list dismissed entries: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No dismissed entries")
			return nil
		}
		all, err := allEntries()
		if err != nil {
			return err
		}
		titles := make(map[string]string, len(all))
		for _, e := range all {
			titles[e.UUID] = e.Title
		}
		for _, id := range ids {
			title, ok := titles[id]
			if !ok {
				title = "(deleted entry)"
			}
			fmt.Printf("%s  %s\n", id, title)
		}
		return nil
	},
}
