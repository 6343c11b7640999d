package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/internal/cli"
	"github.com/forest6511/simplepm/pkg/audit"
)

var errAuditDisabled = errors.New("audit log is not available for this database")

// Audit command flags
var (
	auditLimit int
	auditSince string
	auditOp    string
	auditEntry string
	auditJSON  bool

	auditExportFormat string
	auditExportSince  string
	auditExportUntil  string
	auditExportOutput string

	auditPruneOlderThan string
	auditPruneDryRun    bool
	auditPruneForce     bool
)

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditPruneCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h)")
	auditListCmd.Flags().StringVar(&auditOp, "op", "", "Only show this operation (e.g., entry.update)")
	auditListCmd.Flags().StringVar(&auditEntry, "entry", "", "Only show events about this entry")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "Output in JSON format")

	auditVerifyCmd.Flags().BoolVar(&auditJSON, "json", false, "Output in JSON format")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "json", "Output format: json, csv")
	auditExportCmd.Flags().StringVar(&auditExportSince, "since", "", "Export events since duration (e.g., 30d)")
	auditExportCmd.Flags().StringVar(&auditExportUntil, "until", "", "Export events until date (RFC 3339)")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "Output file path (default: stdout)")

	auditPruneCmd.Flags().StringVar(&auditPruneOlderThan, "older-than", "", "Delete logs older than duration (e.g., 12m for 12 months)")
	auditPruneCmd.Flags().BoolVar(&auditPruneDryRun, "dry-run", false, "Show what would be deleted without deleting")
	auditPruneCmd.Flags().BoolVarP(&auditPruneForce, "force", "f", false, "Skip confirmation prompt")
}

// auditCmd is the parent command for audit operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long: `Inspect the tamper-evident audit log of the open database.

Entry and group identifiers are stored as keyed hashes, so the log does
not reveal titles or UUIDs. Opening the database provides the key.`,
}

// auditLogger opens the database and returns its audit log.
func auditLogger(cmd *cobra.Command) (*audit.Logger, error) {
	if err := ensureOpen(cmd.Context()); err != nil {
		return nil, err
	}
	l := a.Audit()
	if l == nil {
		return nil, errAuditDisabled
	}
	return l, nil
}

// sinceTime converts a relative duration flag to an absolute time.
func sinceTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := cli.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since format: %w", err)
	}
	return time.Now().Add(-d), nil
}

// auditListCmd lists audit log entries
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := auditLogger(cmd)
		if err != nil {
			return err
		}

		filter := audit.Filter{Operation: auditOp, Limit: auditLimit}
		if filter.Since, err = sinceTime(auditSince); err != nil {
			return err
		}
		if auditEntry != "" {
			e, err := resolveEntry(auditEntry)
			if err != nil {
				return err
			}
			if filter.Target, err = l.TargetHash(e.UUID); err != nil {
				return err
			}
		}

		events, err := l.ListEvents(filter)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}
		if auditJSON {
			if events == nil {
				events = []audit.AuditEvent{}
			}
			return printJSON(events)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		for _, event := range events {
			fmt.Println(formatAuditEvent(event))
		}
		fmt.Printf("\nTotal: %d events\n", len(events))
		return nil
	},
}

// formatAuditEvent renders TIMESTAMP OPERATION RESULT SOURCE [TARGET] [ERROR].
func formatAuditEvent(event audit.AuditEvent) string {
	line := fmt.Sprintf("%s %s %s %s", event.Timestamp, event.Operation, event.Result, event.Actor.Source)
	if event.Target != "" {
		// Show truncated target hash
		target := event.Target
		if len(target) > 16 {
			target = target[:16] + "..."
		}
		line += " target:" + target
	}
	if event.Error != nil {
		line += " error:" + event.Error.Code
	}
	return line
}

// auditVerifyCmd verifies audit log integrity
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := auditLogger(cmd)
		if err != nil {
			return err
		}

		result, err := l.Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}
		if auditJSON {
			if err := printJSON(result); err != nil {
				return err
			}
			if !result.Valid {
				return errors.New("audit log integrity check failed")
			}
			return nil
		}

		if result.Valid {
			fmt.Printf("✓ Audit log verified: %d records, chain intact\n", result.RecordsTotal)
			return nil
		}
		fmt.Printf("✗ Audit log verification FAILED\n")
		fmt.Printf("  Records total: %d\n", result.RecordsTotal)
		fmt.Printf("  Records verified: %d\n", result.RecordsVerified)
		fmt.Println("  Errors:")
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
		return errors.New("audit log integrity check failed")
	},
}

// auditExportCmd exports audit logs
var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit logs to JSON or CSV format",
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditExportFormat != "json" && auditExportFormat != "csv" {
			return fmt.Errorf("invalid format: %s (use 'json' or 'csv')", auditExportFormat)
		}

		var filter audit.Filter
		var err error
		if filter.Since, err = sinceTime(auditExportSince); err != nil {
			return err
		}
		if auditExportUntil != "" {
			filter.Until, err = time.Parse(time.RFC3339, auditExportUntil)
			if err != nil {
				return fmt.Errorf("invalid until format (use RFC 3339): %w", err)
			}
		}

		var absPath string
		if auditExportOutput != "" {
			if absPath, err = validateExportPath(auditExportOutput); err != nil {
				return err
			}
		}

		l, err := auditLogger(cmd)
		if err != nil {
			return err
		}
		data, err := l.Export(auditExportFormat, filter)
		if err != nil {
			return fmt.Errorf("failed to export audit logs: %w", err)
		}

		if absPath == "" {
			_, err := os.Stdout.Write(data)
			return err
		}
		// Write to file with secure permissions
		if err := afero.WriteFile(fsys, absPath, data, 0600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Warning: Exported audit logs contain target hashes and operation metadata.\n")
		fmt.Fprintf(os.Stderr, "Audit logs exported to %s\n", absPath)
		return nil
	},
}

// validateExportPath restricts export files to the current directory, the
// home directory or the temp directory.
func validateExportPath(p string) (string, error) {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	prefixes := []string{cwd, os.TempDir()}
	if home, err := os.UserHomeDir(); err == nil {
		prefixes = append(prefixes, home)
	}
	for _, prefix := range prefixes {
		if within(absPath, prefix) {
			return absPath, nil
		}
	}
	return "", errors.New("output path must be within current directory, home directory, or temp directory")
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// auditPruneCmd deletes old audit logs
var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old audit log entries",
	Long: `Delete audit events older than a duration. The chain stays verifiable:
the last pruned record is kept as an anchor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditPruneOlderThan == "" {
			return errors.New("--older-than flag is required")
		}
		duration, err := cli.ParseDuration(auditPruneOlderThan)
		if err != nil {
			return fmt.Errorf("invalid older-than format: %w", err)
		}

		l, err := auditLogger(cmd)
		if err != nil {
			return err
		}

		count, err := l.PrunePreview(duration)
		if err != nil {
			return fmt.Errorf("failed to preview prune: %w", err)
		}
		if auditPruneDryRun {
			fmt.Printf("Would delete %d audit log entries older than %s\n", count, auditPruneOlderThan)
			return nil
		}
		if count == 0 {
			fmt.Println("No audit log entries to delete")
			return nil
		}

		if !auditPruneForce && !confirm(fmt.Sprintf("This will delete %d audit log entries older than %s. Are you sure?", count, auditPruneOlderThan)) {
			fmt.Println("Aborted")
			return nil
		}

		deleted, err := l.Prune(duration)
		if err != nil {
			return fmt.Errorf("failed to prune audit logs: %w", err)
		}
		fmt.Printf("Deleted %d audit log entries\n", deleted)
		return nil
	},
}
