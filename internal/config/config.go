// Package config loads and validates simplepm YAML configuration.
// Missing keys keep their defaults so callers always see populated values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/forest6511/simplepm/internal/logging"
	"github.com/forest6511/simplepm/pkg/crypto"
	"github.com/forest6511/simplepm/pkg/passgen"
)

// Environment variable and file names under the configuration directory.
const (
	EnvHome    = "SIMPLEPM_HOME"
	DirName    = ".simplepm"
	FileName   = "config.yaml"
	PolicyFile = "mcp-policy.yaml"
	StateFile  = "state.db"
	AuditDir   = "audit"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// KDFConfig holds Argon2id parameters for newly created databases.
type KDFConfig struct {
	Iterations  uint64 `yaml:"iterations"`
	MemoryMiB   uint64 `yaml:"memory_mib"`
	Parallelism uint32 `yaml:"parallelism"`
}

// Params converts the configuration into KDF parameters.
func (k KDFConfig) Params() crypto.KDFParams {
	return crypto.KDFParams{
		Algorithm:   crypto.AlgArgon2id,
		Iterations:  k.Iterations,
		Memory:      k.MemoryMiB * crypto.MiB,
		Parallelism: k.Parallelism,
	}
}

// Config mirrors the config.yaml schema.
type Config struct {
	LogLevel        string          `yaml:"log_level"`
	StaleAfterDays  int             `yaml:"stale_after_days"`
	WeakEntropyBits float64         `yaml:"weak_entropy_bits"`
	RecentLimit     int             `yaml:"recent_limit"`
	DefaultKDF      KDFConfig       `yaml:"default_kdf"`
	Generator       passgen.Options `yaml:"generator"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		StaleAfterDays:  90,
		WeakEntropyBits: 40,
		RecentLimit:     10,
		DefaultKDF: KDFConfig{
			Iterations:  crypto.DefaultIterations,
			MemoryMiB:   crypto.DefaultMemory / crypto.MiB,
			Parallelism: crypto.DefaultParallelism,
		},
		Generator: passgen.DefaultOptions(),
	}
}

// Dir returns $SIMPLEPM_HOME, or ~/.simplepm when it is unset.
func Dir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Load reads dir/config.yaml from fs. A missing file yields Default().
func Load(fsys afero.Fs, dir string) (Config, error) {
	c := Default()
	b, err := afero.ReadFile(fsys, filepath.Join(dir, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	// Keys absent from the file keep their defaults
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every field and names the first invalid one.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel, slog.LevelWarn); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	if c.StaleAfterDays < 1 {
		return fmt.Errorf("%w: stale_after_days must be positive", ErrInvalid)
	}
	if c.WeakEntropyBits <= 0 {
		return fmt.Errorf("%w: weak_entropy_bits must be positive", ErrInvalid)
	}
	if c.RecentLimit < 0 {
		return fmt.Errorf("%w: recent_limit must not be negative", ErrInvalid)
	}
	if err := c.DefaultKDF.Params().Validate(); err != nil {
		return fmt.Errorf("%w: default_kdf: %v", ErrInvalid, err)
	}
	if err := c.Generator.Validate(); err != nil {
		return fmt.Errorf("%w: generator: %v", ErrInvalid, err)
	}
	return nil
}

// Level returns the configured log level, or def when none is set.
func (c Config) Level(def slog.Level) slog.Level {
	level, err := logging.ParseLevel(c.LogLevel, def)
	if err != nil {
		return def
	}
	return level
}
