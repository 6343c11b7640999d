package vault

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestCreateGroup(t *testing.T) {
	env := newTestEnv(t)
	icon := 3

	top := mustCreateGroup(t, env.db, "Top", "")
	sub, err := env.db.CreateGroup("Sub", top, &icon)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	tree := env.db.RootGroup()
	if tree.ParentUUID != nil {
		t.Error("root must have no parent")
	}
	g, ok := tree.Find(sub)
	if !ok {
		t.Fatal("created group not found in tree")
	}
	if g.Name != "Sub" || g.IconID == nil || *g.IconID != 3 {
		t.Errorf("unexpected group: %+v", g)
	}
	if g.ParentUUID == nil || *g.ParentUUID != top {
		t.Errorf("expected parent %s, got %v", top, g.ParentUUID)
	}

	got, err := env.db.Group(sub)
	if err != nil || got.ParentUUID == nil || *got.ParentUUID != top {
		t.Errorf("Group(%s) = %+v, %v", sub, got, err)
	}

	if _, err := env.db.CreateGroup("x", uuid.NewString(), nil); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestRenameGroup(t *testing.T) {
	env := newTestEnv(t)
	icon := 7
	id, _ := env.db.CreateGroup("old", "", &icon)

	if err := env.db.RenameGroup(id, "new", nil); err != nil {
		t.Fatalf("RenameGroup failed: %v", err)
	}
	g, _ := env.db.Group(id)
	if g.Name != "new" || g.IconID == nil || *g.IconID != 7 {
		t.Errorf("rename without icon should keep icon: %+v", g)
	}

	other := 9
	if err := env.db.RenameGroup(id, "new", &other); err != nil {
		t.Fatalf("RenameGroup failed: %v", err)
	}
	g, _ = env.db.Group(id)
	if *g.IconID != 9 {
		t.Errorf("expected icon 9, got %d", *g.IconID)
	}

	if err := env.db.RenameGroup("bad", "x", nil); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestDeleteGroup(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreateGroup(t, env.db, "A", "")
	b := mustCreateGroup(t, env.db, "B", a)
	keep := mustCreateGroup(t, env.db, "Keep", "")
	e1 := mustCreateEntry(t, env.db, a, "e1", "")
	e2 := mustCreateEntry(t, env.db, b, "e2", "")
	e3 := mustCreateEntry(t, env.db, keep, "e3", "")

	if err := env.db.DeleteGroup(a); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}

	for _, id := range []string{a, b} {
		if _, err := env.db.Group(id); !errors.Is(err, ErrGroupNotFound) {
			t.Errorf("group %s should be gone, got %v", id, err)
		}
	}
	for _, id := range []string{e1, e2} {
		if _, err := env.db.Entry(id); !errors.Is(err, ErrEntryNotFound) {
			t.Errorf("entry %s should be gone, got %v", id, err)
		}
	}
	if _, err := env.db.Entry(e3); err != nil {
		t.Errorf("unrelated entry removed: %v", err)
	}
	if got := childIDs(t, env.db, env.root()); !equalIDs(got, []string{keep}) {
		t.Errorf("unexpected root children: %v", got)
	}
}

func TestRootGroupIsProtected(t *testing.T) {
	env := newTestEnv(t)
	child := mustCreateGroup(t, env.db, "child", "")
	before := treeJSON(t, env.db)
	root := env.root()

	if err := env.db.DeleteGroup(root); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("DeleteGroup(root) expected ErrGroupNotFound, got %v", err)
	}
	if err := env.db.MoveGroup(root, child); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("MoveGroup(root) expected ErrGroupNotFound, got %v", err)
	}
	if err := env.db.ReorderGroup(root, 0); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("ReorderGroup(root) expected ErrGroupNotFound, got %v", err)
	}

	if after := treeJSON(t, env.db); after != before {
		t.Error("operations on root must not mutate the tree")
	}
}

func TestMoveGroup(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreateGroup(t, env.db, "A", "")
	b := mustCreateGroup(t, env.db, "B", a)
	c := mustCreateGroup(t, env.db, "C", b)
	other := mustCreateGroup(t, env.db, "Other", "")

	t.Run("into itself", func(t *testing.T) {
		before := treeJSON(t, env.db)
		if err := env.db.MoveGroup(a, a); !errors.Is(err, ErrGroupNotFound) {
			t.Errorf("expected ErrGroupNotFound, got %v", err)
		}
		if treeJSON(t, env.db) != before {
			t.Error("failed move must not mutate")
		}
	})

	t.Run("into descendant", func(t *testing.T) {
		before := treeJSON(t, env.db)
		for _, target := range []string{b, c} {
			if err := env.db.MoveGroup(a, target); !errors.Is(err, ErrGroupNotFound) {
				t.Errorf("move into %s expected ErrGroupNotFound, got %v", target, err)
			}
		}
		if treeJSON(t, env.db) != before {
			t.Error("failed move must not mutate")
		}
	})

	t.Run("missing target", func(t *testing.T) {
		if err := env.db.MoveGroup(b, uuid.NewString()); !errors.Is(err, ErrGroupNotFound) {
			t.Errorf("expected ErrGroupNotFound, got %v", err)
		}
	})

	t.Run("subtree moves", func(t *testing.T) {
		if err := env.db.MoveGroup(b, other); err != nil {
			t.Fatalf("MoveGroup failed: %v", err)
		}
		if got := childIDs(t, env.db, a); len(got) != 0 {
			t.Errorf("A should be empty, got %v", got)
		}
		if got := childIDs(t, env.db, other); !equalIDs(got, []string{b}) {
			t.Errorf("unexpected children of Other: %v", got)
		}
		path, _ := env.db.GroupPath(c, "/")
		if path != "Other/B/C" {
			t.Errorf("expected Other/B/C, got %s", path)
		}
	})
}

func TestReorderGroup(t *testing.T) {
	tests := []struct {
		name   string
		move   int
		target int
		want   []int
	}{
		{"forward", 0, 2, []int{1, 2, 0, 3}},
		{"backward", 3, 1, []int{0, 3, 1, 2}},
		{"same index", 1, 1, []int{0, 1, 2, 3}},
		{"past end clamps", 0, 100, []int{1, 2, 3, 0}},
		{"negative clamps", 2, -5, []int{2, 0, 1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ids := make([]string, 4)
			for i := range ids {
				ids[i] = mustCreateGroup(t, env.db, string(rune('a'+i)), "")
			}

			if err := env.db.ReorderGroup(ids[tt.move], tt.target); err != nil {
				t.Fatalf("ReorderGroup failed: %v", err)
			}

			want := make([]string, len(tt.want))
			for i, idx := range tt.want {
				want[i] = ids[idx]
			}
			if got := childIDs(t, env.db, env.root()); !equalIDs(got, want) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestReorderGroup_MixedChildren(t *testing.T) {
	env := newTestEnv(t)
	e := mustCreateEntry(t, env.db, env.root(), "e", "")
	g := mustCreateGroup(t, env.db, "g", "")

	if err := env.db.ReorderGroup(g, 0); err != nil {
		t.Fatalf("ReorderGroup failed: %v", err)
	}
	if got := childIDs(t, env.db, env.root()); !equalIDs(got, []string{g, e}) {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestGroupPath(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreateGroup(t, env.db, "Work", "")
	b := mustCreateGroup(t, env.db, "Servers", a)

	tests := []struct {
		id   string
		want string
	}{
		{env.root(), ""},
		{a, "Work"},
		{b, "Work > Servers"},
	}
	for _, tt := range tests {
		got, err := env.db.GroupPath(tt.id, " > ")
		if err != nil {
			t.Fatalf("GroupPath failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("GroupPath = %q, want %q", got, tt.want)
		}
	}

	if _, err := env.db.GroupPath("bad", "/"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}
