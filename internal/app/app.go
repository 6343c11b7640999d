// Package app holds the application context shared by the CLI, the
// interactive shell and the MCP server: at most one open database, its
// audit log, and the persisted application state.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/forest6511/simplepm/internal/appdb"
	"github.com/forest6511/simplepm/internal/config"
	"github.com/forest6511/simplepm/internal/logging"
	"github.com/forest6511/simplepm/pkg/audit"
	"github.com/forest6511/simplepm/pkg/codec"
	"github.com/forest6511/simplepm/pkg/secret"
	"github.com/forest6511/simplepm/pkg/security"
	"github.com/forest6511/simplepm/pkg/vault"
)

var (
	// ErrAccess is returned when an operation panicked while holding the
	// database state. The state stays usable for later operations.
	ErrAccess = errors.New("failed to access database state")

	// ErrAlreadyOpen is returned by Create and Open while a database is open.
	ErrAlreadyOpen = errors.New("app: a database is already open")
)

// Options configures an App. Zero values select the OS filesystem, a
// discarding logger and no persisted state.
type Options struct {
	Fs      afero.Fs
	Dir     string // configuration directory holding audit logs
	Config  config.Config
	Logger  *slog.Logger
	State   *appdb.Store
	Source  string // audit source: cli, shell or mcp
	Clock   func() time.Time
	NoAudit bool
}

// App is the explicit application context. It moves between two states:
// empty, and holding one open database.
type App struct {
	mu      sync.Mutex
	fs      afero.Fs
	dir     string
	cfg     config.Config
	log     *slog.Logger
	state   *appdb.Store
	source  string
	now     func() time.Time
	noAudit bool

	db    *vault.Database
	codec *codec.Codec
	audit *audit.Logger
}

// New returns an empty application context.
func New(opts Options) *App {
	a := &App{
		fs:      opts.Fs,
		dir:     opts.Dir,
		cfg:     opts.Config,
		log:     opts.Logger,
		state:   opts.State,
		source:  opts.Source,
		now:     opts.Clock,
		noAudit: opts.NoAudit,
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.log == nil {
		a.log = logging.Discard()
	}
	if a.source == "" {
		a.source = audit.SourceCLI
	}
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	if a.cfg == (config.Config{}) {
		a.cfg = config.Default()
	}
	return a
}

// Config returns the configuration the context was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// IsOpen reports whether a database is loaded.
func (a *App) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db != nil
}

// Path returns the open database's file path, or "" when empty.
func (a *App) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return ""
	}
	return a.db.Path()
}

func (a *App) vaultOptions() []vault.Option {
	calc := security.NewCalculator().
		WithClock(a.now).
		WithStaleDays(a.cfg.StaleAfterDays).
		WithWeakThreshold(a.cfg.WeakEntropyBits)
	return []vault.Option{
		vault.WithFs(a.fs),
		vault.WithClock(a.now),
		vault.WithCalculator(calc),
	}
}

// Create writes a new database at path and makes it the open database.
// keyFile may be nil.
func (a *App) Create(ctx context.Context, path string, password secret.String, keyFile []byte) error {
	return a.guard(func() error {
		if a.db != nil {
			return ErrAlreadyOpen
		}
		c := codec.New(codec.WithKeyFile(keyFile))
		opts := append(a.vaultOptions(), vault.WithKDF(a.cfg.DefaultKDF.Params()))
		db, err := vault.Create(path, password, c, opts...)
		if err != nil {
			c.Wipe()
			a.log.Error("create failed", "path", path, "err", err)
			return err
		}

		a.attach(ctx, db, c, len(keyFile) > 0)
		a.log.Info("database created", "path", path)
		a.record(audit.OpDatabaseCreate, "", nil)
		return nil
	})
}

// Open decrypts the database at path and makes it the open database.
func (a *App) Open(ctx context.Context, path string, password secret.String, keyFile []byte) error {
	return a.guard(func() error {
		if a.db != nil {
			return ErrAlreadyOpen
		}
		c := codec.New(codec.WithKeyFile(keyFile))
		db, err := vault.Open(path, password, c, a.vaultOptions()...)
		if err != nil {
			c.Wipe()
			// The audit key is only readable after decryption, so failed
			// opens go to the application log alone
			a.log.Warn("open failed", "path", path, "err", err)
			return err
		}

		a.attach(ctx, db, c, len(keyFile) > 0)
		a.log.Info("database opened", "path", path, "entries", len(db.AllEntries()))
		a.record(audit.OpDatabaseOpen, "", nil)
		return nil
	})
}

// attach installs db as the open database and wires its audit log and the
// recent-files list. Failures of either are logged, never returned.
func (a *App) attach(ctx context.Context, db *vault.Database, c *codec.Codec, usesKeyFile bool) {
	a.db = db
	a.codec = c
	a.audit = a.openAudit(db.Path(), []byte(db.RootGroup().UUID))

	if a.state != nil {
		keyFileHint := ""
		if usesKeyFile {
			keyFileHint = "required"
		}
		if err := a.state.TouchRecent(ctx, db.Path(), keyFileHint, a.now(), a.cfg.RecentLimit); err != nil {
			a.log.Warn("failed to record recent database", "err", err)
		}
	}
}

// openAudit returns the audit log for the database at path, keyed with
// material only readable after decryption.
func (a *App) openAudit(path string, material []byte) *audit.Logger {
	if a.noAudit || a.dir == "" {
		return nil
	}
	l := audit.NewLogger(a.fs, AuditDir(a.dir, path), audit.WithClock(a.now))
	if err := l.SetHMACKey(material); err != nil {
		a.log.Warn("audit disabled", "err", err)
		return nil
	}
	return l
}

// AuditDir returns the audit directory for the database at path.
func AuditDir(configDir, path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sum := sha256.Sum256([]byte(path))
	return filepath.Join(configDir, config.AuditDir, hex.EncodeToString(sum[:8]))
}

// Close wipes and releases the open database. Closing an empty context is
// a no-op.
func (a *App) Close() error {
	return a.guard(func() error {
		if a.db == nil {
			return nil
		}
		path := a.db.Path()
		a.record(audit.OpDatabaseClose, "", nil)
		a.db.Close()
		a.codec.Wipe()
		a.db, a.codec, a.audit = nil, nil, nil
		a.log.Info("database closed", "path", path)
		return nil
	})
}

// Audit returns the open database's audit log, or nil.
func (a *App) Audit() *audit.Logger {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.audit
}

// record appends to the audit log when one is attached. err selects the
// result.
func (a *App) record(op, target string, err error) {
	if a.audit == nil {
		return
	}
	var logErr error
	if err != nil {
		logErr = a.audit.LogError(op, a.source, target, errorCode(err), err.Error())
	} else {
		logErr = a.audit.LogSuccess(op, a.source, target)
	}
	if logErr != nil {
		a.log.Warn("audit write failed", "op", op, "err", logErr)
	}
}

// RecordDenied logs a tool call refused by policy to the audit log.
func (a *App) RecordDenied(tool, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.audit == nil {
		return
	}
	if err := a.audit.LogDenied(audit.OpToolDenied, a.source, tool, reason); err != nil {
		a.log.Warn("audit write failed", "op", audit.OpToolDenied, "err", err)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, vault.ErrEntryNotFound):
		return "ENTRY_NOT_FOUND"
	case errors.Is(err, vault.ErrGroupNotFound):
		return "GROUP_NOT_FOUND"
	case errors.Is(err, vault.ErrInvalidUUID):
		return "INVALID_UUID"
	case errors.Is(err, vault.ErrInvalidAttachmentKey):
		return "INVALID_ATTACHMENT_KEY"
	case errors.Is(err, vault.ErrSave):
		return "SAVE_FAILED"
	case errors.Is(err, vault.ErrOpen):
		return "OPEN_FAILED"
	default:
		return "ERROR"
	}
}

// guard runs fn while holding the state lock. A panic in fn is recovered,
// logged and reported as ErrAccess.
func (a *App) guard(fn func() error) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("recovered from panic while holding database state", "panic", fmt.Sprint(r))
			err = ErrAccess
		}
	}()
	return fn()
}
