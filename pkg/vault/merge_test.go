package vault

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/forest6511/simplepm/pkg/secret"
)

// saveOther saves a second handle and pushes the file time past the first
// handle's watermark.
func saveOther(t *testing.T, env *testEnv, other *Database) {
	t.Helper()
	if err := other.Save(); err != nil {
		t.Fatalf("failed to save second handle: %v", err)
	}
	env.bumpFileTime(t, time.Minute)
}

func TestMerge_UnchangedIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGroup(t, env.db, "g", "")
	e := mustCreateEntry(t, env.db, g, "e", "pw")
	_ = env.db.AddAttachment(e, "f", []byte("data"))
	if err := env.db.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	before := treeJSON(t, env.db)
	for i := 0; i < 2; i++ {
		if err := env.db.Merge(); err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if after := treeJSON(t, env.db); after != before {
			t.Fatalf("merge %d changed an unchanged tree", i+1)
		}
	}
}

func TestMerge_LastWriteWins(t *testing.T) {
	tests := []struct {
		name        string
		oursDelay   time.Duration
		theirsDelay time.Duration
		want        string
	}{
		{"theirs newer", time.Minute, time.Hour, "B"},
		{"ours newer", 2 * time.Hour, time.Hour, "A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			id := mustCreateEntry(t, env.db, env.root(), "orig", "")
			if err := env.db.Save(); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			other, otherClock := env.reopen(t)

			env.clock.Advance(tt.oursDelay)
			mine, _ := env.db.Entry(id)
			mine.Title = "A"
			if err := env.db.UpdateEntry(mine); err != nil {
				t.Fatalf("UpdateEntry failed: %v", err)
			}

			otherClock.Advance(tt.theirsDelay)
			theirs, _ := other.Entry(id)
			theirs.Title = "B"
			if err := other.UpdateEntry(theirs); err != nil {
				t.Fatalf("UpdateEntry failed: %v", err)
			}
			saveOther(t, env, other)

			if err := env.db.Merge(); err != nil {
				t.Fatalf("Merge failed: %v", err)
			}
			got, _ := env.db.Entry(id)
			if got.Title != tt.want {
				t.Errorf("expected title %q, got %q", tt.want, got.Title)
			}
		})
	}
}

func TestMerge_EqualTimesKeepOurs(t *testing.T) {
	env := newTestEnv(t)
	id := mustCreateEntry(t, env.db, env.root(), "orig", "")
	_ = env.db.Save()
	other, otherClock := env.reopen(t)

	env.clock.Advance(time.Hour)
	otherClock.Advance(time.Hour)

	mine, _ := env.db.Entry(id)
	mine.Title = "A"
	_ = env.db.UpdateEntry(mine)
	theirs, _ := other.Entry(id)
	theirs.Title = "B"
	_ = other.UpdateEntry(theirs)
	saveOther(t, env, other)

	if err := env.db.Merge(); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if got, _ := env.db.Entry(id); got.Title != "A" {
		t.Errorf("equal timestamps should keep ours, got %q", got.Title)
	}
}

func TestMerge_AdoptsNewItems(t *testing.T) {
	env := newTestEnv(t)
	existing := mustCreateGroup(t, env.db, "Existing", "")
	_ = env.db.Save()
	other, _ := env.reopen(t)

	newGroup := mustCreateGroup(t, other, "New", existing)
	nested := mustCreateEntry(t, other, newGroup, "nested", "pw")
	top := mustCreateEntry(t, other, other.RootGroup().UUID, "top", "")
	saveOther(t, env, other)

	ourOnly := mustCreateEntry(t, env.db, env.root(), "ours", "")

	if err := env.db.Merge(); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	path, err := env.db.GroupPath(newGroup, "/")
	if err != nil || path != "Existing/New" {
		t.Errorf("new group adopted at %q (%v)", path, err)
	}
	got, err := env.db.Entry(nested)
	if err != nil || got.GroupUUID != newGroup || got.Password != "pw" {
		t.Errorf("nested entry not adopted: %+v (%v)", got, err)
	}
	if got := childIDs(t, env.db, env.root()); !equalIDs(got, []string{existing, ourOnly, top}) {
		t.Errorf("unexpected root order: %v", got)
	}
}

func TestMerge_NeverDeletes(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGroup(t, env.db, "g", "")
	e := mustCreateEntry(t, env.db, g, "e", "")
	_ = env.db.Save()
	other, _ := env.reopen(t)

	if err := other.DeleteGroup(g); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
	saveOther(t, env, other)

	if err := env.db.Merge(); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if _, err := env.db.Entry(e); err != nil {
		t.Errorf("merge must not delete entries: %v", err)
	}
	if _, err := env.db.Group(g); err != nil {
		t.Errorf("merge must not delete groups: %v", err)
	}
}

func TestMerge_MovedItemsAreNotDuplicated(t *testing.T) {
	env := newTestEnv(t)
	g := mustCreateGroup(t, env.db, "g", "")
	sub := mustCreateGroup(t, env.db, "sub", "")
	e := mustCreateEntry(t, env.db, env.root(), "e", "")
	_ = env.db.Save()
	other, _ := env.reopen(t)

	fresh := mustCreateGroup(t, other, "fresh", "")
	if err := other.MoveEntry(e, fresh); err != nil {
		t.Fatalf("MoveEntry failed: %v", err)
	}
	if err := other.MoveGroup(sub, g); err != nil {
		t.Fatalf("MoveGroup failed: %v", err)
	}
	saveOther(t, env, other)

	if err := env.db.Merge(); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if n := len(env.db.AllEntries()); n != 1 {
		t.Errorf("expected 1 entry after merge, got %d", n)
	}
	seen := 0
	var walk func(GroupData)
	walk = func(gd GroupData) {
		if gd.UUID == sub {
			seen++
		}
		for _, c := range gd.Children {
			walk(c)
		}
	}
	walk(env.db.RootGroup())
	if seen != 1 {
		t.Errorf("group should appear once, appeared %d times", seen)
	}
	if _, err := env.db.Group(fresh); err != nil {
		t.Errorf("new group should be adopted: %v", err)
	}
}

func TestMerge_RebindsAttachments(t *testing.T) {
	env := newTestEnv(t)
	mine := mustCreateEntry(t, env.db, env.root(), "mine", "")
	_ = env.db.Save()
	other, _ := env.reopen(t)

	_ = env.db.AddAttachment(mine, "local", []byte("LOCAL"))

	theirs := mustCreateEntry(t, other, other.RootGroup().UUID, "theirs", "")
	_ = other.AddAttachment(theirs, "remote", []byte("REMOTE"))
	saveOther(t, env, other)

	if err := env.db.Merge(); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if data, err := env.db.Attachment(mine, "local"); err != nil || string(data) != "LOCAL" {
		t.Errorf("local attachment = %q, %v", data, err)
	}
	if data, err := env.db.Attachment(theirs, "remote"); err != nil || string(data) != "REMOTE" {
		t.Errorf("adopted attachment = %q, %v", data, err)
	}
	if n := env.db.AttachmentCount(); n != 2 {
		t.Errorf("expected 2 slots, got %d", n)
	}
}

func TestMerge_RefreshesWatermark(t *testing.T) {
	env := newTestEnv(t)
	other, _ := env.reopen(t)
	mustCreateEntry(t, other, other.RootGroup().UUID, "x", "")
	saveOther(t, env, other)

	changed, _ := env.db.CheckForChanges()
	if !changed {
		t.Fatal("expected external change")
	}
	if err := env.db.Merge(); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if changed, _ := env.db.CheckForChanges(); changed {
		t.Error("merge should refresh the watermark")
	}
}

func TestMerge_Failures(t *testing.T) {
	tests := []struct {
		name  string
		corrupt func(t *testing.T, env *testEnv)
	}{
		{"wrong credential", func(t *testing.T, env *testEnv) {
			if _, err := Create(testPath, secret.New("someone-else"), jsonCodec{}, WithFs(env.fs)); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}},
		{"corrupt file", func(t *testing.T, env *testEnv) {
			if err := afero.WriteFile(env.fs, testPath, []byte("master-password\n{not json"), 0600); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}
		}},
		{"missing file", func(t *testing.T, env *testEnv) {
			if err := env.fs.Remove(testPath); err != nil {
				t.Fatalf("Remove failed: %v", err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			mustCreateEntry(t, env.db, env.root(), "unsaved", "")
			before := treeJSON(t, env.db)

			tt.corrupt(t, env)

			err := env.db.Merge()
			if !errors.Is(err, ErrOpen) {
				t.Errorf("expected ErrOpen, got %v", err)
			}
			if after := treeJSON(t, env.db); after != before {
				t.Error("failed merge must leave the tree untouched")
			}
		})
	}
}
