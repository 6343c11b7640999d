package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// Verify checks sequence numbers, back links and HMACs of every record.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrKeyNotSet
	}
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	expectedPrev := genesisHash
	var expectedSeq int64 = 1

	anchor, err := l.loadAnchor()
	if err != nil {
		return nil, err
	}
	if anchor != nil {
		if anchor.HMAC != l.keyedHash(anchor.data()) {
			result.Valid = false
			result.Errors = append(result.Errors, "prune anchor HMAC mismatch: possible tampering")
		}
		expectedPrev = anchor.PrevHash
		expectedSeq = anchor.Sequence
	}

	for i := range events {
		event := &events[i]
		result.RecordsTotal++
		ok := true

		if event.Chain.Sequence != expectedSeq {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d",
				event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s: expected prev %s, got %s",
				event.ID, expectedPrev, event.Chain.PrevHash))
		}
		if event.Chain.HMAC != l.sign(event) {
			ok = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", event.ID))
		}

		if ok {
			result.RecordsVerified++
		} else {
			result.Valid = false
		}
		expectedPrev = event.Chain.HMAC
		expectedSeq = event.Chain.Sequence + 1
	}
	return result, nil
}

// Filter selects events. Zero fields do not filter.
type Filter struct {
	Since     time.Time
	Until     time.Time
	Operation string
	Target    string // stored (hashed) form, see TargetHash
	Limit     int    // keep the most recent Limit events
}

func (f Filter) match(event AuditEvent) bool {
	if f.Operation != "" && event.Operation != f.Operation {
		return false
	}
	if f.Target != "" && event.Target != f.Target {
		return false
	}
	if f.Since.IsZero() && f.Until.IsZero() {
		return true
	}
	ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
	if err != nil {
		return false
	}
	if !f.Since.IsZero() && ts.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ts.After(f.Until) {
		return false
	}
	return true
}

// ListEvents returns matching events in chronological order.
func (l *Logger) ListEvents(f Filter) ([]AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list(f)
}

func (l *Logger) list(f Filter) ([]AuditEvent, error) {
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}
	var out []AuditEvent
	for _, event := range events {
		if f.match(event) {
			out = append(out, event)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// Export renders matching events as "json" or "csv".
func (l *Logger) Export(format string, f Filter) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.list(f)
	if err != nil {
		return nil, err
	}
	switch format {
	case "json":
		if events == nil {
			events = []AuditEvent{}
		}
		return json.MarshalIndent(events, "", "  ")
	case "csv":
		return formatCSV(events)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func formatCSV(events []AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "operation", "source", "result", "target"}); err != nil {
		return nil, err
	}
	for _, event := range events {
		target := event.Target
		if len(target) > 16 {
			target = target[:16] + "..."
		}
		row := []string{event.Timestamp, event.Operation, event.Actor.Source, event.Result, target}
		for i := range row {
			row[i] = neutralizeFormula(row[i])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// neutralizeFormula prefixes cells that spreadsheets would evaluate.
func neutralizeFormula(field string) string {
	if field == "" {
		return field
	}
	switch field[0] {
	case '=', '+', '-', '@':
		return "'" + field
	}
	return field
}

// Prune removes events older than olderThan and returns how many were
// removed. The chain position after the last removed record is kept in a
// signed anchor so Verify continues from there.
func (l *Logger) Prune(olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hmacKey == nil {
		return 0, ErrKeyNotSet
	}
	return l.prune(olderThan, false)
}

// PrunePreview counts what Prune would remove.
func (l *Logger) PrunePreview(olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prune(olderThan, true)
}

func (l *Logger) prune(olderThan time.Duration, dryRun bool) (int, error) {
	cutoff := l.now().Add(-olderThan)
	files, err := l.logFiles()
	if err != nil {
		return 0, err
	}

	deleted := 0
	var last *Chain
	for _, file := range files {
		events, err := l.readLogFile(file)
		if err != nil {
			return deleted, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}

		var remaining []AuditEvent
		for _, event := range events {
			ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
			if err == nil && ts.Before(cutoff) {
				deleted++
				chain := event.Chain
				last = &chain
				continue
			}
			remaining = append(remaining, event)
		}
		if dryRun || len(remaining) == len(events) {
			continue
		}

		if len(remaining) == 0 {
			if err := l.fs.Remove(file); err != nil {
				return deleted, fmt.Errorf("audit: failed to delete %s: %w", file, err)
			}
			continue
		}
		if err := l.rewriteLogFile(file, remaining); err != nil {
			return deleted, fmt.Errorf("audit: failed to rewrite %s: %w", file, err)
		}
	}

	if dryRun || last == nil {
		return deleted, nil
	}
	return deleted, l.saveAnchor(last)
}

// anchor records where the surviving chain starts after a prune.
type anchor struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

func (a anchor) data() string {
	return fmt.Sprintf("anchor|%d|%s", a.Sequence, a.PrevHash)
}

func (l *Logger) saveAnchor(last *Chain) error {
	a := anchor{Sequence: last.Sequence + 1, PrevHash: last.HMAC}
	a.HMAC = l.keyedHash(a.data())
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal prune anchor: %w", err)
	}
	if err := afero.WriteFile(l.fs, filepath.Join(l.path, anchorFile), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save prune anchor: %w", err)
	}
	return nil
}

func (l *Logger) loadAnchor() (*anchor, error) {
	data, err := afero.ReadFile(l.fs, filepath.Join(l.path, anchorFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: failed to read prune anchor: %w", err)
	}
	var a anchor
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("audit: failed to parse prune anchor: %w", err)
	}
	return &a, nil
}

// rewriteLogFile replaces path with events via a temp file and rename.
func (l *Logger) rewriteLogFile(path string, events []AuditEvent) error {
	var buf bytes.Buffer
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(l.fs, tmp, buf.Bytes(), 0600); err != nil {
		_ = l.fs.Remove(tmp)
		return err
	}
	return l.fs.Rename(tmp, path)
}
