package config

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/forest6511/simplepm/pkg/crypto"
)

const testDir = "/home/user/.simplepm"

func writeConfig(t *testing.T, fs afero.Fs, body string) {
	t.Helper()
	if err := afero.WriteFile(fs, filepath.Join(testDir, FileName), []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	c, err := Load(afero.NewMemMapFs(), testDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c != Default() {
		t.Errorf("got %+v, want defaults", c)
	}
	if c.DefaultKDF.Params() != crypto.DefaultKDF() {
		t.Errorf("default KDF = %+v, want %+v", c.DefaultKDF.Params(), crypto.DefaultKDF())
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, `
log_level: debug
stale_after_days: 30
generator:
  length: 32
  symbols: false
`)

	c, err := Load(fs, testDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.LogLevel != "debug" || c.StaleAfterDays != 30 {
		t.Errorf("explicit values not applied: %+v", c)
	}
	if c.RecentLimit != 10 || c.WeakEntropyBits != 40 {
		t.Errorf("defaults lost: %+v", c)
	}
	if c.Generator.Length != 32 || c.Generator.Symbols || !c.Generator.Uppercase {
		t.Errorf("unexpected generator options: %+v", c.Generator)
	}
	if c.Level(slog.LevelWarn) != slog.LevelDebug {
		t.Errorf("Level = %v, want debug", c.Level(slog.LevelWarn))
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"log level", "log_level: loud", "log_level"},
		{"stale days", "stale_after_days: 0", "stale_after_days"},
		{"entropy", "weak_entropy_bits: -1", "weak_entropy_bits"},
		{"recent", "recent_limit: -5", "recent_limit"},
		{"kdf", "default_kdf: {iterations: 0}", "default_kdf"},
		{"generator", "generator: {length: 0}", "generator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeConfig(t, fs, tt.body)

			_, err := Load(fs, testDir)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "log_level: [")

	if _, err := Load(fs, testDir); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestDir(t *testing.T) {
	t.Setenv(EnvHome, "/tmp/simplepm-test")
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir failed: %v", err)
	}
	if dir != "/tmp/simplepm-test" {
		t.Errorf("Dir = %s, want /tmp/simplepm-test", dir)
	}
}
