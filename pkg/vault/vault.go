// Package vault is the in-memory credential store: a tree of groups and
// entries loaded through a Codec, with the mutation, merge, search and
// aggregation operations over it.
//
// A Database owns its tree exclusively and guards it with one mutex. Every
// exported method holds the lock for its full duration and returns deep
// copies, so results stay valid after the call returns.
package vault

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/forest6511/simplepm/pkg/crypto"
	"github.com/forest6511/simplepm/pkg/secret"
	"github.com/forest6511/simplepm/pkg/security"
)

const (
	// FileExtension is appended by callers that derive file names.
	FileExtension = ".spdb"
	FileMode      = 0600 // Owner read/write only

	// Disk capacity thresholds
	MinDiskSpaceBytes  = 10 * 1024 * 1024 // 10 MB minimum free space
	DiskWarningPercent = 90               // Warn when disk is 90% full

	// Master password limits
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// Codec converts between a database file and its decrypted Tree.
// Decode must return an error wrapping ErrInvalidCredentials when the
// credential does not match.
type Codec interface {
	Decode(r io.Reader, credential secret.String) (*Tree, error)
	Encode(w io.Writer, tree *Tree, credential secret.String) error
}

// Database is one open database file.
type Database struct {
	mu         sync.Mutex
	fs         afero.Fs
	codec      Codec
	path       string
	credential secret.String
	tree       *Tree
	watermark  time.Time
	now        func() time.Time
	calc       *security.Calculator
	kdf        crypto.KDFParams
}

// Option configures a Database.
type Option func(*Database)

// WithFs sets the filesystem used for the database file. Defaults to the OS.
func WithFs(fs afero.Fs) Option {
	return func(d *Database) { d.fs = fs }
}

// WithClock overrides the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Database) { d.now = now }
}

// WithKDF sets the key derivation parameters used by Create. Open always
// keeps the parameters stored in the file.
func WithKDF(p crypto.KDFParams) Option {
	return func(d *Database) { d.kdf = p }
}

// WithCalculator sets the calculator used by DashboardStats and Report.
func WithCalculator(c *security.Calculator) Option {
	return func(d *Database) { d.calc = c }
}

func newDatabase(path string, credential secret.String, codec Codec, opts []Option) *Database {
	d := &Database{
		fs:         afero.NewOsFs(),
		codec:      codec,
		path:       path,
		credential: credential,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.calc == nil {
		d.calc = security.NewCalculator().WithClock(d.now)
	}
	return d
}

// Create writes a new empty database at path. The root group is named after
// the file name without its extension. The default KDF is used unless
// WithKDF is given.
func Create(path string, credential secret.String, codec Codec, opts ...Option) (*Database, error) {
	d := newDatabase(path, credential, codec, opts)

	kdf := d.kdf
	if kdf.Algorithm == "" {
		kdf = crypto.DefaultKDF()
	}
	if err := kdf.Validate(); err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if name == "" || name == "." {
		name = "Root"
	}
	d.tree = NewTree(name, kdf, d.now())

	if err := d.save(); err != nil {
		return nil, err
	}
	return d, nil
}

// Open reads and decrypts the database at path.
func Open(path string, credential secret.String, codec Codec, opts ...Option) (*Database, error) {
	d := newDatabase(path, credential, codec, opts)

	tree, err := d.read()
	if err != nil {
		return nil, err
	}
	d.tree = tree
	d.watermark = d.fileModTime()
	return d, nil
}

// read decodes the backing file with the current credential.
func (d *Database) read() (*Tree, error) {
	data, err := afero.ReadFile(d.fs, d.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	tree, err := d.codec.Decode(bytes.NewReader(data), d.credential)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if tree.Root == nil {
		return nil, fmt.Errorf("%w: database has no root group", ErrOpen)
	}
	return tree, nil
}

// Path returns the backing file path.
func (d *Database) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// Name returns the root group's name.
func (d *Database) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tree.Root.Name
}

// Save encodes the tree to the backing file and refreshes the watermark.
func (d *Database) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.save()
}

// SaveAs writes the database to a new path, which becomes the backing file.
func (d *Database) SaveAs(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.path
	d.path = path
	if err := d.save(); err != nil {
		d.path = old
		return err
	}
	return nil
}

// ChangeCredential replaces the master credential and saves.
func (d *Database) ChangeCredential(credential secret.String) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.credential
	d.credential = credential
	if err := d.save(); err != nil {
		d.credential = old
		return err
	}
	old.Destroy()
	return nil
}

// save writes to a temporary file in the same directory and renames it over
// the target so a failed write never truncates the existing database.
func (d *Database) save() error {
	var buf bytes.Buffer
	if err := d.codec.Encode(&buf, d.tree, d.credential); err != nil {
		return fmt.Errorf("%w: %v", ErrSave, err)
	}

	if err := d.checkDiskSpaceForWrite(buf.Len()); err != nil {
		return fmt.Errorf("%w: %v", ErrSave, err)
	}

	dir := filepath.Dir(d.path)
	tmp, err := afero.TempFile(d.fs, dir, "."+filepath.Base(d.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSave, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		_ = d.fs.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSave, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = d.fs.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSave, err)
	}
	if err := tmp.Close(); err != nil {
		_ = d.fs.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSave, err)
	}
	_ = d.fs.Chmod(tmpName, FileMode)

	if err := d.fs.Rename(tmpName, d.path); err != nil {
		_ = d.fs.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrSave, err)
	}

	d.watermark = d.fileModTime()
	return nil
}

// fileModTime returns the backing file's modification time, or the zero
// time if it cannot be read.
func (d *Database) fileModTime() time.Time {
	info, err := d.fs.Stat(d.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// CheckForChanges reports whether the backing file was modified after the
// last open, save or merge. It does not merge.
func (d *Database) CheckForChanges() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.fileModTime()
	if current.IsZero() || d.watermark.IsZero() {
		return false, nil
	}
	return current.After(d.watermark), nil
}

// Close wipes the credential and every protected value held in memory.
// The Database must not be used afterwards.
func (d *Database) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tree != nil {
		walkEntries(d.tree.Root, func(e *Entry, _ *Group) { e.wipe() })
		d.tree = nil
	}
	d.credential.Destroy()
}

// DiskSpaceInfo describes the filesystem holding the database file.
type DiskSpaceInfo struct {
	Total     uint64 `json:"total"`     // Total disk space in bytes
	Free      uint64 `json:"free"`      // Free disk space in bytes
	Available uint64 `json:"available"` // Available to non-root users
	UsedPct   int    `json:"used_pct"`  // Percentage of disk used
}

// checkDiskSpaceForWrite verifies sufficient disk space before writing.
// Only the OS filesystem is checked.
func (d *Database) checkDiskSpaceForWrite(dataSize int) error {
	if _, ok := d.fs.(*afero.OsFs); !ok {
		return nil
	}

	info, err := checkDiskSpace(d.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to check disk space: %v\n", err)
		return nil
	}

	// Need at least MinDiskSpaceBytes or 2x the data size, whichever is larger
	required := uint64(MinDiskSpaceBytes)
	if uint64(dataSize*2) > required {
		required = uint64(dataSize * 2)
	}

	if info.Available < required {
		return fmt.Errorf("%w: only %d MB available, need at least %d MB",
			ErrInsufficientDisk,
			info.Available/(1024*1024),
			required/(1024*1024))
	}

	if info.UsedPct >= DiskWarningPercent {
		fmt.Fprintf(os.Stderr, "warning: disk is %d%% full, consider freeing space\n", info.UsedPct)
	}

	return nil
}

// PasswordValidationResult contains the result of master password validation.
type PasswordValidationResult struct {
	Valid    bool                      // Whether password meets minimum requirements
	Strength security.PasswordStrength // Estimated strength
	Warnings []string                  // Suggestions for improvement (not errors)
}

// ValidateMasterPassword checks length limits and reports strength.
// Composition only produces warnings.
func ValidateMasterPassword(password string) *PasswordValidationResult {
	result := &PasswordValidationResult{Valid: true}

	if len(password) < MinPasswordLength {
		result.Valid = false
		result.Strength = security.PasswordWeak
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
		return result
	}
	if len(password) > MaxPasswordLength {
		result.Valid = false
		result.Strength = security.PasswordWeak
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Password must be at most %d characters", MaxPasswordLength))
		return result
	}

	result.Strength = security.CalculateStrength(password)
	if result.Strength < security.PasswordGood {
		result.Warnings = append(result.Warnings,
			"Consider a longer password mixing uppercase, lowercase, numbers, and symbols")
	}
	if len(password) < 12 {
		result.Warnings = append(result.Warnings,
			"Longer passwords (12+ characters) are more secure")
	}
	return result
}
