// Package audit provides a tamper-evident JSONL audit log. Every record
// carries an HMAC over its content and the previous record's HMAC, so
// edits, deletions and insertions break the chain.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/crypto/hkdf"
)

// Disk space constants
const (
	MinAuditDiskSpace = 1024 * 1024 // 1 MB minimum for audit logs
)

const (
	schemaVersion = 1
	genesisHash   = "genesis"
	metaFile      = "audit.meta"
	anchorFile    = "audit.anchor"
	logExt        = ".jsonl"
)

// Operation types for audit logging
const (
	// Database lifecycle
	OpDatabaseCreate     = "db.create"
	OpDatabaseOpen       = "db.open"
	OpDatabaseOpenFailed = "db.open_failed"
	OpDatabaseSave       = "db.save"
	OpDatabaseClose      = "db.close"
	OpDatabaseMerge      = "db.merge"
	OpCredentialChange   = "db.credential_change"
	OpKDFChange          = "db.kdf_change"

	// Entry operations
	OpEntryCreate = "entry.create"
	OpEntryUpdate = "entry.update"
	OpEntryDelete = "entry.delete"
	OpEntryMove   = "entry.move"
	OpEntryCopy   = "entry.copy"

	// Group operations
	OpGroupCreate  = "group.create"
	OpGroupRename  = "group.rename"
	OpGroupDelete  = "group.delete"
	OpGroupMove    = "group.move"
	OpGroupReorder = "group.reorder"

	// Attachment operations
	OpAttachmentAdd    = "attachment.add"
	OpAttachmentDelete = "attachment.delete"

	OpImport     = "import.apply"
	OpToolDenied = "mcp.tool_denied"
)

// Source identifies where the operation originated
const (
	SourceCLI   = "cli"
	SourceShell = "shell"
	SourceMCP   = "mcp"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

var (
	ErrKeyNotSet         = errors.New("audit: HMAC key not set")
	ErrUnsupportedFormat = errors.New("audit: unsupported export format")
	ErrInsufficientDisk  = errors.New("audit: insufficient disk space")
)

// AuditEvent is a single audit log record.
type AuditEvent struct {
	Version   int    `json:"v"`
	ID        string `json:"id"` // time-ordered UUIDv7
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision

	Operation string `json:"op"`
	Target    string `json:"target,omitempty"` // HMAC of the entry or group UUID

	Actor Actor `json:"actor"`

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Context map[string]string `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// Actor represents who performed the operation
type Actor struct {
	Type      string `json:"type"`   // user | system
	Source    string `json:"source"` // cli | shell | mcp
	SessionID string `json:"session_id"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// ChainState holds the persistent chain state
type ChainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

// Logger appends chained events to monthly files under one directory.
type Logger struct {
	fs        afero.Fs
	path      string
	now       func() time.Time
	mu        sync.Mutex
	hmacKey   []byte
	sequence  int64
	prevHash  string
	sessionID string
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// NewLogger creates a logger writing under path on fs.
func NewLogger(fs afero.Fs, path string, opts ...Option) *Logger {
	l := &Logger{
		fs:        fs,
		path:      path,
		now:       time.Now,
		prevHash:  genesisHash,
		sessionID: generateSessionID(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the audit log directory path
func (l *Logger) Path() string {
	return l.path
}

// SetHMACKey derives the chain key from secret material using HKDF-SHA256
// and loads the persisted chain state.
func (l *Logger) SetHMACKey(material []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := hkdf.New(sha256.New, material, nil, []byte("simplepm-audit-v1"))
	key := make([]byte, sha256.Size)
	if _, err := r.Read(key); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.hmacKey = key

	if err := l.loadChainState(); err != nil {
		// First run
		l.sequence = 0
		l.prevHash = genesisHash
	}
	return nil
}

// Log records an audit event. target is an entry or group identifier and
// is stored only as a keyed hash.
func (l *Logger) Log(op, source, result, target string, errInfo *ErrorInfo, ctx map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrKeyNotSet
	}
	if err := l.fs.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	now := l.now().UTC()
	event := AuditEvent{
		Version:   schemaVersion,
		ID:        generateEventID(),
		Timestamp: now.Format(time.RFC3339Nano),
		Operation: op,
		Actor: Actor{
			Type:      "user",
			Source:    source,
			SessionID: l.sessionID,
		},
		Result:  result,
		Error:   errInfo,
		Context: ctx,
	}
	if target != "" {
		event.Target = l.keyedHash(target)
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.sign(&event)

	if err := l.appendEvent(now, &event); err != nil {
		l.sequence--
		return err
	}
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations
func (l *Logger) LogSuccess(op, source, target string) error {
	return l.Log(op, source, ResultSuccess, target, nil, nil)
}

// LogError is a convenience method for failed operations
func (l *Logger) LogError(op, source, target, errCode, errMsg string) error {
	return l.Log(op, source, ResultError, target, &ErrorInfo{Code: errCode, Message: errMsg}, nil)
}

// LogDenied is a convenience method for denied operations
func (l *Logger) LogDenied(op, source, target, reason string) error {
	return l.Log(op, source, ResultDenied, target, nil, map[string]string{"reason": reason})
}

// TargetHash returns the stored form of target, for matching events
// against a known identifier.
func (l *Logger) TargetHash(target string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hmacKey == nil {
		return "", ErrKeyNotSet
	}
	return l.keyedHash(target), nil
}

func (l *Logger) keyedHash(s string) string {
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}

func (l *Logger) sign(event *AuditEvent) string {
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(recordData(event))
	return hex.EncodeToString(mac.Sum(nil))
}

// recordData serializes every significant field of event except its own
// HMAC. Context keys are sorted so the result is deterministic.
func recordData(event *AuditEvent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%s|%s|%s|", event.Version, event.ID, event.Timestamp, event.Operation, event.Target)
	fmt.Fprintf(&b, "%s|%s|%s|", event.Actor.Type, event.Actor.Source, event.Actor.SessionID)
	b.WriteString(event.Result)
	b.WriteByte('|')
	if event.Error != nil {
		fmt.Fprintf(&b, "%s|%s", event.Error.Code, event.Error.Message)
	}
	b.WriteByte('|')

	keys := make([]string, 0, len(event.Context))
	for k := range event.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s|", k, event.Context[k])
	}

	fmt.Fprintf(&b, "%d|%s", event.Chain.Sequence, event.Chain.PrevHash)
	return []byte(b.String())
}

// appendEvent writes event to the log file for the month of at.
func (l *Logger) appendEvent(at time.Time, event *AuditEvent) error {
	name := filepath.Join(l.path, at.Format("2006-01")+logExt)

	f, err := l.fs.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

func (l *Logger) loadChainState() error {
	data, err := afero.ReadFile(l.fs, filepath.Join(l.path, metaFile))
	if err != nil {
		return err
	}
	var state ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(ChainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := afero.WriteFile(l.fs, filepath.Join(l.path, metaFile), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// logFiles returns the monthly log files in chronological order.
func (l *Logger) logFiles() ([]string, error) {
	files, err := afero.Glob(l.fs, filepath.Join(l.path, "*"+logExt))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM names sort chronologically
	sort.Strings(files)
	return files, nil
}

func (l *Logger) readLogFile(path string) ([]AuditEvent, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, err
	}

	var events []AuditEvent
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var event AuditEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to parse line: %w", err)
		}
		events = append(events, event)
	}
	return events, sc.Err()
}

func (l *Logger) readAll() ([]AuditEvent, error) {
	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}
	var all []AuditEvent
	for _, file := range files {
		events, err := l.readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		all = append(all, events...)
	}
	return all, nil
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
