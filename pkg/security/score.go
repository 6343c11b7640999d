package security

import (
	"math"
	"strconv"
	"time"
)

// Defaults for the dashboard classification.
const (
	DefaultStaleDays  = 90
	DefaultExpiryDays = 30
)

// Record is the snapshot of one entry that aggregation needs. Callers copy
// records out of the database before analysis so no lock is held here.
type Record struct {
	ID       string
	Title    string
	Password string
	Modified time.Time
	Expires  bool
	Expiry   time.Time
	Favorite bool
}

// DashboardStats is a derived, non-persisted summary of a database.
type DashboardStats struct {
	TotalEntries            int     `json:"total_entries"`
	TotalGroups             int     `json:"total_groups"`
	WeakPasswords           int     `json:"weak_passwords"`
	ReusedPasswords         int     `json:"reused_passwords"`
	OldPasswords            int     `json:"old_passwords"`
	ExpiredEntries          int     `json:"expired_entries"`
	FavoriteEntries         int     `json:"favorite_entries"`
	AveragePasswordStrength float64 `json:"average_password_strength"`
}

// HealthScore condenses the stats into 0..100. Each problem class costs a
// fixed weight scaled by the share of entries it affects.
func (s DashboardStats) HealthScore() int {
	total := float64(s.TotalEntries)
	if total < 1 {
		total = 1
	}
	score := 100.0 -
		float64(s.WeakPasswords)/total*30 -
		float64(s.ReusedPasswords)/total*25 -
		float64(s.OldPasswords)/total*20 -
		float64(s.ExpiredEntries)/total*25
	return int(math.Max(0, math.Round(score)))
}

// IssueType identifies the type of security issue.
type IssueType string

const (
	// IssueWeakPassword indicates a password with insufficient strength.
	IssueWeakPassword IssueType = "weak"
	// IssueDuplicatePassword indicates passwords reused across entries.
	IssueDuplicatePassword IssueType = "duplicate"
	// IssueOldPassword indicates an entry not modified for a long time.
	IssueOldPassword IssueType = "old"
	// IssueExpiringSoon indicates an entry expiring within the warning period.
	IssueExpiringSoon IssueType = "expiring"
	// IssueExpired indicates an entry that has already expired.
	IssueExpired IssueType = "expired"
)

// Severity indicates the urgency of a security issue.
type Severity string

const (
	// SeverityCritical requires immediate attention.
	SeverityCritical Severity = "critical"
	// SeverityWarning should be addressed soon.
	SeverityWarning Severity = "warning"
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"
)

// SecurityIssue represents a detected security problem.
type SecurityIssue struct {
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	EntryID     string    `json:"entry_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	EntryIDs    []string  `json:"entry_ids,omitempty"`
	Description string    `json:"description"`
	Suggestion  string    `json:"suggestion,omitempty"`
}

// Report is the detailed security assessment behind the dashboard numbers.
type Report struct {
	Stats       DashboardStats  `json:"stats"`
	Score       int             `json:"score"`
	Issues      []SecurityIssue `json:"issues"`
	Suggestions []string        `json:"suggestions"`
	Limited     bool            `json:"limited"`
}

// Calculator computes dashboard statistics and reports.
// A Calculator is not safe for concurrent use.
type Calculator struct {
	hmacKey    []byte // Session-local key for reuse detection
	weakBits   float64
	staleDays  int
	expiryDays int
	now        func() time.Time
}

// NewCalculator creates a calculator with the default thresholds.
func NewCalculator() *Calculator {
	return &Calculator{
		weakBits:   WeakEntropyBits,
		staleDays:  DefaultStaleDays,
		expiryDays: DefaultExpiryDays,
		now:        time.Now,
	}
}

// WithStaleDays sets the age after which an entry counts as old.
func (c *Calculator) WithStaleDays(days int) *Calculator {
	c.staleDays = days
	return c
}

// WithWeakThreshold sets the entropy below which a password is weak.
func (c *Calculator) WithWeakThreshold(bits float64) *Calculator {
	c.weakBits = bits
	return c
}

// WithExpiryDays sets the number of days to consider as "expiring soon".
func (c *Calculator) WithExpiryDays(days int) *Calculator {
	c.expiryDays = days
	return c
}

// WithClock overrides the time source.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

func (c *Calculator) isOld(r Record, now time.Time) bool {
	if r.Modified.IsZero() {
		return false
	}
	return r.Modified.Before(now.AddDate(0, 0, -c.staleDays))
}

func isExpired(r Record, now time.Time) bool {
	return r.Expires && !r.Expiry.IsZero() && r.Expiry.Before(now)
}

// Dashboard recomputes the summary statistics in one pass over records.
// totalGroups is supplied by the caller since records carry no structure.
func (c *Calculator) Dashboard(records []Record, totalGroups int) (DashboardStats, error) {
	hashes, _, err := c.passwordHashes(records)
	if err != nil {
		return DashboardStats{}, err
	}

	now := c.now()
	stats := DashboardStats{
		TotalEntries: len(records),
		TotalGroups:  totalGroups,
	}

	var totalEntropy float64
	for _, r := range records {
		bits := Entropy(r.Password)
		totalEntropy += bits
		if bits < c.weakBits {
			stats.WeakPasswords++
		}
		if c.isOld(r, now) {
			stats.OldPasswords++
		}
		if isExpired(r, now) {
			stats.ExpiredEntries++
		}
		if r.Favorite {
			stats.FavoriteEntries++
		}
	}

	for _, ids := range hashes {
		if len(ids) > 1 {
			stats.ReusedPasswords++
		}
	}

	if len(records) > 0 {
		stats.AveragePasswordStrength = totalEntropy / float64(len(records))
	}

	return stats, nil
}

// Report builds the dashboard stats plus the individual issues behind them.
// A positive limit caps the number of issues of each type.
func (c *Calculator) Report(records []Record, totalGroups int, includeIDs bool, limit int) (*Report, error) {
	stats, err := c.Dashboard(records, totalGroups)
	if err != nil {
		return nil, err
	}

	issues := make([]SecurityIssue, 0)
	limited := false

	weak := c.FindWeakPasswords(records, includeIDs, 0)
	issues, limited = appendLimited(issues, weak, limit, limited)

	dups, err := c.FindDuplicates(records, true, 0)
	if err != nil {
		return nil, err
	}
	var dupIssues []SecurityIssue
	for _, d := range dups {
		issue := SecurityIssue{
			Type:        IssueDuplicatePassword,
			Severity:    SeverityWarning,
			Description: strconv.Itoa(d.Count) + " entries share the same password",
			Suggestion:  "Use unique passwords for each entry",
		}
		if includeIDs {
			issue.EntryIDs = d.EntryIDs
		}
		dupIssues = append(dupIssues, issue)
	}
	issues, limited = appendLimited(issues, dupIssues, limit, limited)

	now := c.now()
	var oldIssues, expiryIssues []SecurityIssue
	for _, r := range records {
		if c.isOld(r, now) {
			days := int(now.Sub(r.Modified).Hours() / 24)
			oldIssues = append(oldIssues, c.entryIssue(r, includeIDs, SecurityIssue{
				Type:        IssueOldPassword,
				Severity:    SeverityInfo,
				Description: "Not changed for " + formatDays(days),
				Suggestion:  "Rotate long-lived passwords",
			}))
		}
		switch {
		case isExpired(r, now):
			expiryIssues = append(expiryIssues, c.entryIssue(r, includeIDs, SecurityIssue{
				Type:        IssueExpired,
				Severity:    SeverityCritical,
				Description: "Entry has expired",
				Suggestion:  "Renew or remove expired credentials",
			}))
		case r.Expires && !r.Expiry.IsZero() && r.Expiry.Before(now.AddDate(0, 0, c.expiryDays)):
			days := int(r.Expiry.Sub(now).Hours() / 24)
			expiryIssues = append(expiryIssues, c.entryIssue(r, includeIDs, SecurityIssue{
				Type:        IssueExpiringSoon,
				Severity:    SeverityWarning,
				Description: "Entry expires in " + formatDays(days),
				Suggestion:  "Plan to renew before expiration",
			}))
		}
	}
	issues, limited = appendLimited(issues, oldIssues, limit, limited)
	issues, limited = appendLimited(issues, expiryIssues, limit, limited)

	return &Report{
		Stats:       stats,
		Score:       stats.HealthScore(),
		Issues:      issues,
		Suggestions: generateSuggestions(issues),
		Limited:     limited,
	}, nil
}

func (c *Calculator) entryIssue(r Record, includeIDs bool, issue SecurityIssue) SecurityIssue {
	if includeIDs {
		issue.EntryID = r.ID
		issue.Title = r.Title
	}
	return issue
}

func appendLimited(dst, src []SecurityIssue, limit int, limited bool) ([]SecurityIssue, bool) {
	if limit > 0 && len(src) > limit {
		return append(dst, src[:limit]...), true
	}
	return append(dst, src...), limited
}

// generateSuggestions creates actionable recommendations based on issues.
func generateSuggestions(issues []SecurityIssue) []string {
	seen := make(map[IssueType]bool)
	for _, issue := range issues {
		seen[issue.Type] = true
	}

	suggestions := make([]string, 0)
	if seen[IssueWeakPassword] {
		suggestions = append(suggestions, "Update weak passwords with generated alternatives")
	}
	if seen[IssueDuplicatePassword] {
		suggestions = append(suggestions, "Replace duplicate passwords with unique values")
	}
	if seen[IssueExpired] {
		suggestions = append(suggestions, "Remove or renew expired credentials immediately")
	}
	if seen[IssueExpiringSoon] {
		suggestions = append(suggestions, "Plan to renew expiring credentials before they expire")
	}
	if seen[IssueOldPassword] {
		suggestions = append(suggestions, "Rotate passwords that have not changed in months")
	}
	return suggestions
}

// formatDays returns a human-readable day count.
func formatDays(days int) string {
	if days == 0 {
		return "today"
	}
	if days == 1 {
		return "1 day"
	}
	return strconv.Itoa(days) + " days"
}

// formatBits renders an entropy estimate with one decimal.
func formatBits(bits float64) string {
	return strconv.FormatFloat(bits, 'f', 1, 64) + " bits"
}
