package vault

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/forest6511/simplepm/pkg/secret"
)

const testPath = "/data/test.spdb"

// jsonCodec stores the credential in clear followed by the JSON tree.
type jsonCodec struct{}

func (jsonCodec) Encode(w io.Writer, tree *Tree, credential secret.String) error {
	if _, err := fmt.Fprintln(w, credential.Expose()); err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(tree)
}

func (jsonCodec) Decode(r io.Reader, credential secret.String) (*Tree, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("missing header: %w", err)
	}
	if strings.TrimSuffix(line, "\n") != credential.Expose() {
		return nil, ErrInvalidCredentials
	}
	var tree Tree
	if err := json.NewDecoder(br).Decode(&tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// failingCodec fails every Encode.
type failingCodec struct{ jsonCodec }

func (failingCodec) Encode(io.Writer, *Tree, secret.String) error {
	return errors.New("disk on fire")
}

type testClock struct{ t time.Time }

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type testEnv struct {
	fs    afero.Fs
	clock *testClock
	db    *Database
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/data", 0700); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	clock := newTestClock()

	db, err := Create(testPath, secret.New("master-password"), jsonCodec{}, WithFs(fs), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	return &testEnv{fs: fs, clock: clock, db: db}
}

// reopen opens a second handle on the same file with its own clock.
func (e *testEnv) reopen(t *testing.T) (*Database, *testClock) {
	t.Helper()
	clock := &testClock{t: e.clock.t}
	db, err := Open(testPath, secret.New("master-password"), jsonCodec{}, WithFs(e.fs), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	return db, clock
}

// bumpFileTime moves the file's modification time forward so watermark
// comparisons do not depend on wall-clock resolution.
func (e *testEnv) bumpFileTime(t *testing.T, d time.Duration) {
	t.Helper()
	info, err := e.fs.Stat(testPath)
	if err != nil {
		t.Fatalf("failed to stat: %v", err)
	}
	mt := info.ModTime().Add(d)
	if err := e.fs.Chtimes(testPath, mt, mt); err != nil {
		t.Fatalf("failed to set file time: %v", err)
	}
}

func (e *testEnv) root() string {
	return e.db.RootGroup().UUID
}

func mustCreateGroup(t *testing.T, db *Database, name, parent string) string {
	t.Helper()
	id, err := db.CreateGroup(name, parent, nil)
	if err != nil {
		t.Fatalf("failed to create group %s: %v", name, err)
	}
	return id
}

func mustCreateEntry(t *testing.T, db *Database, group, title, password string) string {
	t.Helper()
	id, err := db.CreateEntry(EntryData{GroupUUID: group, Title: title, Password: password})
	if err != nil {
		t.Fatalf("failed to create entry %s: %v", title, err)
	}
	return id
}

// childIDs lists the UUIDs of a group's direct children in order.
func childIDs(t *testing.T, db *Database, group string) []string {
	t.Helper()
	db.mu.Lock()
	defer db.mu.Unlock()

	g, err := db.findGroup(group)
	if err != nil {
		t.Fatalf("failed to find group: %v", err)
	}
	var ids []string
	for _, n := range g.Children {
		if n.Group != nil {
			ids = append(ids, n.Group.UUID.String())
		} else {
			ids = append(ids, n.Entry.UUID.String())
		}
	}
	return ids
}

// treeJSON serializes the whole tree for structural comparison.
func treeJSON(t *testing.T, db *Database) string {
	t.Helper()
	db.mu.Lock()
	defer db.mu.Unlock()
	data, err := json.Marshal(db.tree)
	if err != nil {
		t.Fatalf("failed to marshal tree: %v", err)
	}
	return string(data)
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
