package vault

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/forest6511/simplepm/pkg/secret"
	"github.com/forest6511/simplepm/pkg/security"
)

func TestCreate(t *testing.T) {
	env := newTestEnv(t)

	if got := env.db.Name(); got != "test" {
		t.Errorf("expected root named after file stem, got %q", got)
	}
	if _, err := env.fs.Stat(testPath); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if env.db.RootGroup().ParentUUID != nil {
		t.Error("root group must have no parent")
	}

	info := env.db.KdfInfo()
	if info.KdfType != "Argon2id" || info.IsWeak {
		t.Errorf("expected strong Argon2id defaults, got %+v", info)
	}
}

func TestCreate_SaveFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Create("/x/y.spdb", secret.New("pw"), failingCodec{}, WithFs(fs))
	if !errors.Is(err, ErrSave) {
		t.Errorf("expected ErrSave, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	env := newTestEnv(t)
	group := mustCreateGroup(t, env.db, "Work", "")
	entry := mustCreateEntry(t, env.db, group, "mail", "hunter2")
	if err := env.db.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Run("valid credential", func(t *testing.T) {
		db, _ := env.reopen(t)
		got, err := db.Entry(entry)
		if err != nil {
			t.Fatalf("Entry failed: %v", err)
		}
		if got.Password != "hunter2" || got.GroupUUID != group {
			t.Errorf("unexpected entry after reopen: %+v", got)
		}
	})

	t.Run("wrong credential", func(t *testing.T) {
		_, err := Open(testPath, secret.New("wrong"), jsonCodec{}, WithFs(env.fs))
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Open("/data/missing.spdb", secret.New("x"), jsonCodec{}, WithFs(env.fs))
		if !errors.Is(err, ErrOpen) {
			t.Errorf("expected ErrOpen, got %v", err)
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		if err := afero.WriteFile(env.fs, "/data/bad.spdb", []byte("pw\n{not json"), 0600); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
		_, err := Open("/data/bad.spdb", secret.New("pw"), jsonCodec{}, WithFs(env.fs))
		if !errors.Is(err, ErrOpen) {
			t.Errorf("expected ErrOpen, got %v", err)
		}
	})
}

func TestSaveAs(t *testing.T) {
	env := newTestEnv(t)
	mustCreateEntry(t, env.db, env.root(), "a", "b")

	if err := env.db.SaveAs("/data/copy.spdb"); err != nil {
		t.Fatalf("SaveAs failed: %v", err)
	}
	if env.db.Path() != "/data/copy.spdb" {
		t.Errorf("expected path to switch, got %s", env.db.Path())
	}

	copyDB, err := Open("/data/copy.spdb", secret.New("master-password"), jsonCodec{}, WithFs(env.fs))
	if err != nil {
		t.Fatalf("failed to open copy: %v", err)
	}
	if len(copyDB.AllEntries()) != 1 {
		t.Error("copy should contain the entry")
	}
}

func TestChangeCredential(t *testing.T) {
	env := newTestEnv(t)

	if err := env.db.ChangeCredential(secret.New("new-password")); err != nil {
		t.Fatalf("ChangeCredential failed: %v", err)
	}

	if _, err := Open(testPath, secret.New("master-password"), jsonCodec{}, WithFs(env.fs)); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old credential should be rejected, got %v", err)
	}
	if _, err := Open(testPath, secret.New("new-password"), jsonCodec{}, WithFs(env.fs)); err != nil {
		t.Errorf("new credential should open: %v", err)
	}
}

func TestSave_FailureKeepsFile(t *testing.T) {
	env := newTestEnv(t)
	before, _ := afero.ReadFile(env.fs, testPath)

	env.db.codec = failingCodec{}
	mustCreateEntry(t, env.db, env.root(), "x", "y")
	if err := env.db.Save(); !errors.Is(err, ErrSave) {
		t.Fatalf("expected ErrSave, got %v", err)
	}

	after, _ := afero.ReadFile(env.fs, testPath)
	if string(before) != string(after) {
		t.Error("failed save must not modify the existing file")
	}
}

func TestCheckForChanges(t *testing.T) {
	env := newTestEnv(t)

	changed, err := env.db.CheckForChanges()
	if err != nil {
		t.Fatalf("CheckForChanges failed: %v", err)
	}
	if changed {
		t.Error("fresh database should report no changes")
	}

	env.bumpFileTime(t, time.Minute)
	changed, _ = env.db.CheckForChanges()
	if !changed {
		t.Error("expected change after the file was modified")
	}

	// checking does not merge or move the watermark
	changed, _ = env.db.CheckForChanges()
	if !changed {
		t.Error("CheckForChanges must be advisory only")
	}

	if err := env.db.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	changed, _ = env.db.CheckForChanges()
	if changed {
		t.Error("save should refresh the watermark")
	}
}

func TestCheckForChanges_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	if err := env.fs.Remove(testPath); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	changed, err := env.db.CheckForChanges()
	if err != nil || changed {
		t.Errorf("expected (false, nil), got (%v, %v)", changed, err)
	}
}

func TestClose(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateEntry(t, env.db, env.root(), "x", "secret")

	env.db.mu.Lock()
	e, _, _ := env.db.findEntry(id)
	pw, _ := e.Fields.Get(FieldPassword)
	env.db.mu.Unlock()

	env.db.Close()
	if pw.Text() != "" {
		t.Error("protected values should be wiped on close")
	}
	if !env.db.credential.IsEmpty() {
		t.Error("credential should be wiped on close")
	}
}

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	group := mustCreateGroup(t, env.db, "G", "")
	mustCreateEntry(t, env.db, group, "weak", "aaaa")
	mustCreateEntry(t, env.db, group, "strong", "Tr0ub4dor&3")
	mustCreateEntry(t, env.db, env.root(), "reuse", "Tr0ub4dor&3")

	stats, err := env.db.DashboardStats()
	if err != nil {
		t.Fatalf("DashboardStats failed: %v", err)
	}
	if stats.TotalEntries != 3 {
		t.Errorf("expected 3 entries, got %d", stats.TotalEntries)
	}
	if stats.TotalGroups != 2 {
		t.Errorf("expected 2 groups including root, got %d", stats.TotalGroups)
	}
	if stats.WeakPasswords != 1 {
		t.Errorf("expected 1 weak password, got %d", stats.WeakPasswords)
	}
	if stats.ReusedPasswords != 1 {
		t.Errorf("expected 1 reused password, got %d", stats.ReusedPasswords)
	}
	if stats.OldPasswords != 0 {
		t.Errorf("expected no old passwords, got %d", stats.OldPasswords)
	}

	env.clock.Advance(91 * 24 * time.Hour)
	stats, _ = env.db.DashboardStats()
	if stats.OldPasswords != 3 {
		t.Errorf("expected 3 old passwords after 91 days, got %d", stats.OldPasswords)
	}
}

func TestDashboardStats_Expired(t *testing.T) {
	env := newTestEnv(t)
	past := "2024-12-31T23:59"
	future := "2025-02-01T00:00"
	for _, tc := range []struct {
		expires bool
		at      *string
	}{{true, &past}, {true, &future}, {false, &past}} {
		_, err := env.db.CreateEntry(EntryData{GroupUUID: env.root(), Title: "e", Expires: tc.expires, ExpiryTime: tc.at})
		if err != nil {
			t.Fatalf("CreateEntry failed: %v", err)
		}
	}

	stats, _ := env.db.DashboardStats()
	if stats.ExpiredEntries != 1 {
		t.Errorf("expected 1 expired entry, got %d", stats.ExpiredEntries)
	}
}

func TestReport(t *testing.T) {
	env := newTestEnv(t)
	mustCreateEntry(t, env.db, env.root(), "weak", "abc")

	report, err := env.db.Report(true, 0)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if len(report.Issues) != 1 || report.Issues[0].Type != security.IssueWeakPassword {
		t.Errorf("unexpected issues: %+v", report.Issues)
	}
}

func TestRecordsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateEntry(t, env.db, env.root(), "x", "before")

	records := env.db.Records()
	if err := env.db.UpdateEntry(EntryData{UUID: id, GroupUUID: env.root(), Title: "x", Password: "after"}); err != nil {
		t.Fatalf("UpdateEntry failed: %v", err)
	}
	if records[0].Password != "before" {
		t.Error("records must be an owned snapshot")
	}
}

func TestValidateMasterPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"too short", "short", false},
		{"minimum", "abcdefgh", true},
		{"strong", "C0rrect-Horse-Battery", true},
		{"too long", string(make([]byte, MaxPasswordLength+1)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateMasterPassword(tt.password)
			if result.Valid != tt.valid {
				t.Errorf("expected valid=%v, got %v", tt.valid, result.Valid)
			}
		})
	}

	if r := ValidateMasterPassword("C0rrect-Horse-Battery"); r.Strength < security.PasswordGood || len(r.Warnings) != 0 {
		t.Errorf("expected strong password without warnings, got %+v", r)
	}
}
