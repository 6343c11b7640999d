package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/afero"

	"github.com/forest6511/simplepm/internal/app"
	"github.com/forest6511/simplepm/internal/config"
	"github.com/forest6511/simplepm/pkg/audit"
	"github.com/forest6511/simplepm/pkg/secret"
	"github.com/forest6511/simplepm/pkg/vault"
)

const (
	testPath     = "/vaults/agent.spdb"
	testPassword = "testpassword123"
)

func testConfig() config.Config {
	c := config.Default()
	c.DefaultKDF = config.KDFConfig{Iterations: 1, MemoryMiB: 1, Parallelism: 1}
	return c
}

// testApp creates a database on an in-memory filesystem and returns the
// context holding it open.
func testApp(t *testing.T) (*app.App, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	a := app.New(app.Options{Fs: fs, Dir: "/cfg", Config: testConfig(), Source: audit.SourceMCP})
	if err := a.Create(context.Background(), testPath, secret.New(testPassword), nil); err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, fs
}

// testServer returns a server over a fresh database with the given policy.
func testServer(t *testing.T, policy *Policy) *Server {
	t.Helper()
	a, _ := testApp(t)
	s, err := NewServer(context.Background(), ServerOptions{App: a, Policy: policy})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return s
}

func allowAll() *Policy {
	return &Policy{Version: 1, DefaultAction: ActionAllow}
}

// addTestEntry adds an entry below the group at path.
func addTestEntry(t *testing.T, s *Server, group, title, password string) string {
	t.Helper()
	_, out, err := s.handleEntryCreate(context.Background(), nil, EntryCreateInput{
		Group:    group,
		Title:    title,
		Username: strings.ToLower(title) + "@example.com",
		Password: password,
	})
	if err != nil {
		t.Fatalf("failed to add entry '%s': %v", title, err)
	}
	return out.UUID
}

func addTestGroup(t *testing.T, s *Server, path string) string {
	t.Helper()
	_, out, err := s.handleGroupCreate(context.Background(), nil, GroupCreateInput{Path: path})
	if err != nil {
		t.Fatalf("failed to add group '%s': %v", path, err)
	}
	return out.UUID
}

func TestNewServer_NoApp(t *testing.T) {
	if _, err := NewServer(context.Background(), ServerOptions{}); err == nil {
		t.Error("expected error without an application context")
	}
}

func TestNewServer_NoPassword(t *testing.T) {
	_, fs := testApp(t)
	os.Unsetenv(EnvPassword)

	a := app.New(app.Options{Fs: fs, Config: testConfig()})
	_, err := NewServer(context.Background(), ServerOptions{App: a, Path: testPath})
	if err == nil {
		t.Fatal("expected error when no password provided")
	}
	if err.Error() != "no password provided: set SIMPLEPM_PASSWORD environment variable" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewServer_InvalidPassword(t *testing.T) {
	_, fs := testApp(t)

	a := app.New(app.Options{Fs: fs, Config: testConfig()})
	_, err := NewServer(context.Background(), ServerOptions{App: a, Path: testPath, Password: "wrongpassword"})
	if !errors.Is(err, vault.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestNewServer_FromEnvironment(t *testing.T) {
	_, fs := testApp(t)
	t.Setenv(EnvPassword, testPassword)

	a := app.New(app.Options{Fs: fs, Config: testConfig()})
	s, err := NewServer(context.Background(), ServerOptions{App: a, Path: testPath})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer s.Close()

	if os.Getenv(EnvPassword) != "" {
		t.Error("expected password to be removed from the environment")
	}
	if !a.IsOpen() {
		t.Error("expected database to be open")
	}
}

func TestNewServer_DefaultPolicy(t *testing.T) {
	s := testServer(t, nil)
	if !s.policy.ReadOnly {
		t.Error("expected read-only default policy")
	}
	if len(s.Tools()) != 21 {
		t.Errorf("expected 21 tools, got %d: %v", len(s.Tools()), s.Tools())
	}
}

func TestServer_Close(t *testing.T) {
	s := testServer(t, allowAll())
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.app.IsOpen() {
		t.Error("expected database to be closed")
	}
	if _, _, err := s.handleStats(context.Background(), nil, StatsInput{}); !errors.Is(err, vault.ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded after close, got %v", err)
	}
}

func TestHandleGroupList(t *testing.T) {
	s := testServer(t, allowAll())
	work := addTestGroup(t, s, "Work")
	servers := addTestGroup(t, s, "Work/Servers")

	_, out, err := s.handleGroupList(context.Background(), nil, GroupListInput{})
	if err != nil {
		t.Fatalf("handleGroupList failed: %v", err)
	}
	if len(out.Groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(out.Groups))
	}
	if out.Groups[0].Path != "/" || out.Groups[0].ParentUUID != "" {
		t.Errorf("expected root first, got %+v", out.Groups[0])
	}
	if out.Groups[2].UUID != servers || out.Groups[2].Path != "Work/Servers" || out.Groups[2].ParentUUID != work {
		t.Errorf("unexpected nested group %+v", out.Groups[2])
	}
}

func TestHandleEntryList(t *testing.T) {
	s := testServer(t, allowAll())
	addTestGroup(t, s, "Work")
	addTestEntry(t, s, "", "Mail", "mail-password")
	addTestEntry(t, s, "Work", "GitHub", "github-password")

	_, all, err := s.handleEntryList(context.Background(), nil, EntryListInput{})
	if err != nil {
		t.Fatalf("handleEntryList failed: %v", err)
	}
	if len(all.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all.Entries))
	}

	_, work, err := s.handleEntryList(context.Background(), nil, EntryListInput{Group: "Work"})
	if err != nil {
		t.Fatalf("handleEntryList failed: %v", err)
	}
	if len(work.Entries) != 1 || work.Entries[0].Title != "GitHub" || work.Entries[0].Group != "Work" {
		t.Errorf("unexpected group listing %+v", work.Entries)
	}
	if !work.Entries[0].HasPassword {
		t.Error("expected has_password")
	}

	if _, _, err := s.handleEntryList(context.Background(), nil, EntryListInput{Group: "Nope"}); !errors.Is(err, vault.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestHandleEntryList_Favorites(t *testing.T) {
	s := testServer(t, allowAll())
	_, out, err := s.handleEntryCreate(context.Background(), nil, EntryCreateInput{Title: "Fav", Favorite: true})
	if err != nil {
		t.Fatalf("handleEntryCreate failed: %v", err)
	}
	addTestEntry(t, s, "", "Plain", "x")

	_, list, err := s.handleEntryList(context.Background(), nil, EntryListInput{Favorites: true})
	if err != nil {
		t.Fatalf("handleEntryList failed: %v", err)
	}
	if len(list.Entries) != 1 || list.Entries[0].UUID != out.UUID {
		t.Errorf("expected only the favorite, got %+v", list.Entries)
	}
}

func TestHandleEntrySearch(t *testing.T) {
	s := testServer(t, allowAll())
	addTestGroup(t, s, "Work")
	addTestEntry(t, s, "", "Personal GitHub", "a")
	addTestEntry(t, s, "Work", "Work GitHub", "b")

	_, out, err := s.handleEntrySearch(context.Background(), nil, EntrySearchInput{Query: "github"})
	if err != nil {
		t.Fatalf("handleEntrySearch failed: %v", err)
	}
	if len(out.Entries) != 2 {
		t.Errorf("expected 2 results, got %d", len(out.Entries))
	}

	_, out, err = s.handleEntrySearch(context.Background(), nil, EntrySearchInput{Query: "github", Group: "Work"})
	if err != nil {
		t.Fatalf("handleEntrySearch failed: %v", err)
	}
	if len(out.Entries) != 1 || out.Entries[0].Title != "Work GitHub" {
		t.Errorf("unexpected scoped results %+v", out.Entries)
	}
}

func TestHandleEntryGet_Masked(t *testing.T) {
	s := testServer(t, allowAll())
	id := addTestEntry(t, s, "", "API", "sk-1234567890WXYZ")

	_, out, err := s.handleEntryGet(context.Background(), nil, EntryGetInput{Entry: "API"})
	if err != nil {
		t.Fatalf("handleEntryGet failed: %v", err)
	}
	if out.Entry.UUID != id {
		t.Errorf("expected %s, got %s", id, out.Entry.UUID)
	}
	if !out.PasswordMasked || out.Password != "*************WXYZ" {
		t.Errorf("expected masked password, got %q", out.Password)
	}
	if out.Strength == "" {
		t.Error("expected strength")
	}
}

func TestHandleEntryGet_Revealed(t *testing.T) {
	policy := allowAll()
	policy.RevealPasswords = true
	s := testServer(t, policy)
	id := addTestEntry(t, s, "", "API", "sk-1234567890WXYZ")

	if err := s.app.AddAttachment(id, "cert_pem", []byte("0123456789")); err != nil {
		t.Fatalf("AddAttachment failed: %v", err)
	}

	_, out, err := s.handleEntryGet(context.Background(), nil, EntryGetInput{Entry: id})
	if err != nil {
		t.Fatalf("handleEntryGet failed: %v", err)
	}
	if out.PasswordMasked || out.Password != "sk-1234567890WXYZ" {
		t.Errorf("expected revealed password, got %q", out.Password)
	}
	if len(out.Attachments) != 1 || out.Attachments[0].Size != 10 {
		t.Errorf("unexpected attachments %+v", out.Attachments)
	}
}

func TestHandleEntryGet_Errors(t *testing.T) {
	s := testServer(t, allowAll())
	addTestEntry(t, s, "", "Twin", "a")
	addTestEntry(t, s, "", "Twin", "b")

	tests := []struct {
		name  string
		entry string
	}{
		{"empty", ""},
		{"missing", "Nope"},
		{"ambiguous", "Twin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := s.handleEntryGet(context.Background(), nil, EntryGetInput{Entry: tt.entry}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHandleEntryUpdate(t *testing.T) {
	s := testServer(t, allowAll())
	id := addTestEntry(t, s, "", "Mail", "old-password")

	newPassword := "new-password"
	fav := true
	_, _, err := s.handleEntryUpdate(context.Background(), nil, EntryUpdateInput{
		Entry:    id,
		Password: &newPassword,
		Favorite: &fav,
	})
	if err != nil {
		t.Fatalf("handleEntryUpdate failed: %v", err)
	}

	e, err := app.Query(s.app, func(db *vault.Database) (vault.EntryData, error) { return db.Entry(id) })
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	if e.Password != newPassword || !e.IsFavorite || e.Title != "Mail" {
		t.Errorf("unexpected entry after update %+v", e)
	}
	if len(e.History) != 1 || e.History[0].Password != "old-password" {
		t.Errorf("expected previous version in history, got %+v", e.History)
	}
}

func TestHandleEntryMoveAndDelete(t *testing.T) {
	s := testServer(t, allowAll())
	work := addTestGroup(t, s, "Work")
	id := addTestEntry(t, s, "", "Mail", "x")

	if _, _, err := s.handleEntryMove(context.Background(), nil, EntryMoveInput{Entry: "Mail", Group: "Work"}); err != nil {
		t.Fatalf("handleEntryMove failed: %v", err)
	}
	e, err := app.Query(s.app, func(db *vault.Database) (vault.EntryData, error) { return db.Entry(id) })
	if err != nil || e.GroupUUID != work {
		t.Fatalf("expected entry in Work, got %+v (%v)", e, err)
	}

	if _, _, err := s.handleEntryDelete(context.Background(), nil, EntryRefInput{Entry: id}); err != nil {
		t.Fatalf("handleEntryDelete failed: %v", err)
	}
	if _, _, err := s.handleEntryGet(context.Background(), nil, EntryGetInput{Entry: id}); !errors.Is(err, vault.ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestHandleGroupRenameAndDelete(t *testing.T) {
	s := testServer(t, allowAll())
	addTestGroup(t, s, "Work")
	addTestEntry(t, s, "Work", "GitHub", "x")

	if _, _, err := s.handleGroupRename(context.Background(), nil, GroupRenameInput{Group: "Work", Name: "Job"}); err != nil {
		t.Fatalf("handleGroupRename failed: %v", err)
	}
	if _, _, err := s.handleGroupDelete(context.Background(), nil, GroupRefInput{Group: "Job"}); err != nil {
		t.Fatalf("handleGroupDelete failed: %v", err)
	}

	_, out, err := s.handleEntryList(context.Background(), nil, EntryListInput{})
	if err != nil {
		t.Fatalf("handleEntryList failed: %v", err)
	}
	if len(out.Entries) != 0 {
		t.Errorf("expected entries of the deleted group to be gone, got %d", len(out.Entries))
	}
	if _, _, err := s.handleGroupDelete(context.Background(), nil, GroupRefInput{}); err == nil {
		t.Error("expected error for empty group")
	}
}

func TestHandleEntryUpdate_KeepsExternalChanges(t *testing.T) {
	a, fs := testApp(t)
	s, err := NewServer(context.Background(), ServerOptions{App: a, Policy: allowAll()})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	id := addTestEntry(t, s, "", "Mail", "pw")

	other := app.New(app.Options{Fs: fs, Config: testConfig()})
	if err := other.Open(context.Background(), testPath, secret.New(testPassword), nil); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer other.Close()
	if _, err := other.EditEntry(id, func(e *vault.EntryData) error {
		e.Username = "changed@example.com"
		return nil
	}); err != nil {
		t.Fatalf("EditEntry failed: %v", err)
	}
	if err := fs.Chtimes(testPath, time.Now(), time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	notes := "rotated"
	if _, _, err := s.handleEntryUpdate(context.Background(), nil, EntryUpdateInput{Entry: id, Notes: &notes}); err != nil {
		t.Fatalf("handleEntryUpdate failed: %v", err)
	}
	e, err := app.Query(a, func(db *vault.Database) (vault.EntryData, error) { return db.Entry(id) })
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	if e.Username != "changed@example.com" || e.Notes != "rotated" {
		t.Errorf("expected the other process's username and our notes, got %q / %q", e.Username, e.Notes)
	}
}

func TestHandleGroupMoveAndReorder(t *testing.T) {
	s := testServer(t, allowAll())
	work := addTestGroup(t, s, "Work")
	personal := addTestGroup(t, s, "Personal")
	addTestGroup(t, s, "Archive")

	if _, _, err := s.handleGroupReorder(context.Background(), nil, GroupReorderInput{Group: "Archive", Index: 0}); err != nil {
		t.Fatalf("handleGroupReorder failed: %v", err)
	}
	root, err := s.rootGroup()
	if err != nil {
		t.Fatalf("rootGroup failed: %v", err)
	}
	var names []string
	for _, c := range root.Children {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "Archive,Work,Personal" {
		t.Errorf("unexpected order after reorder: %v", names)
	}

	if _, _, err := s.handleGroupMove(context.Background(), nil, GroupMoveInput{Group: "Personal", Parent: "Work"}); err != nil {
		t.Fatalf("handleGroupMove failed: %v", err)
	}
	if _, err := s.resolveGroup("Work/Personal"); err != nil {
		t.Errorf("expected Personal below Work: %v", err)
	}
	if _, _, err := s.handleGroupMove(context.Background(), nil, GroupMoveInput{Group: work, Parent: personal}); !errors.Is(err, vault.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound moving a group below its descendant, got %v", err)
	}
	if _, _, err := s.handleGroupReorder(context.Background(), nil, GroupReorderInput{Group: "Work", Index: -1}); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestHandleAttachments(t *testing.T) {
	s := testServer(t, &Policy{Version: 1, DefaultAction: ActionAllow, RevealPasswords: true})
	id := addTestEntry(t, s, "", "Server", "x")
	content := base64.StdEncoding.EncodeToString([]byte("-----BEGIN KEY-----"))

	if _, _, err := s.handleAttachmentAdd(context.Background(), nil, AttachmentAddInput{Entry: id, Key: "id_ed25519", Content: content}); err != nil {
		t.Fatalf("handleAttachmentAdd failed: %v", err)
	}
	_, got, err := s.handleAttachmentGet(context.Background(), nil, AttachmentRefInput{Entry: "Server", Key: "id_ed25519"})
	if err != nil {
		t.Fatalf("handleAttachmentGet failed: %v", err)
	}
	if got.Content != content || got.Size != len("-----BEGIN KEY-----") {
		t.Errorf("unexpected attachment %+v", got)
	}

	if _, _, err := s.handleAttachmentAdd(context.Background(), nil, AttachmentAddInput{Entry: id, Key: "key.pem", Content: content}); !errors.Is(err, vault.ErrInvalidAttachmentKey) {
		t.Errorf("expected ErrInvalidAttachmentKey, got %v", err)
	}
	if _, _, err := s.handleAttachmentAdd(context.Background(), nil, AttachmentAddInput{Entry: id, Key: "k", Content: "not base64!"}); err == nil {
		t.Error("expected error for invalid base64")
	}

	if _, _, err := s.handleAttachmentDelete(context.Background(), nil, AttachmentRefInput{Entry: id, Key: "id_ed25519"}); err != nil {
		t.Fatalf("handleAttachmentDelete failed: %v", err)
	}
	if _, _, err := s.handleAttachmentGet(context.Background(), nil, AttachmentRefInput{Entry: id, Key: "id_ed25519"}); !errors.Is(err, vault.ErrAttachmentNotFound) {
		t.Errorf("expected ErrAttachmentNotFound, got %v", err)
	}
}

func TestHandleAttachmentGet_Masked(t *testing.T) {
	s := testServer(t, allowAll())
	id := addTestEntry(t, s, "", "Server", "x")
	if err := s.app.AddAttachment(id, "secret", []byte("data")); err != nil {
		t.Fatalf("AddAttachment failed: %v", err)
	}
	if _, _, err := s.handleAttachmentGet(context.Background(), nil, AttachmentRefInput{Entry: id, Key: "secret"}); err == nil {
		t.Error("expected attachment content to stay hidden without reveal_passwords")
	}
}

func TestAuthorize_ReadOnlyDeniesNewMutations(t *testing.T) {
	s := testServer(t, nil)
	for _, tool := range []string{"group_move", "group_reorder", "attachment_add", "attachment_delete"} {
		if err := s.authorize(tool, true); !errors.Is(err, ErrToolDenied) {
			t.Errorf("%s: expected ErrToolDenied, got %v", tool, err)
		}
	}
}

func TestHandleGroupCreate_MissingParent(t *testing.T) {
	s := testServer(t, allowAll())
	if _, _, err := s.handleGroupCreate(context.Background(), nil, GroupCreateInput{Path: "A/B"}); !errors.Is(err, vault.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestHandleEntryCreate_Generate(t *testing.T) {
	s := testServer(t, allowAll())
	_, out, err := s.handleEntryCreate(context.Background(), nil, EntryCreateInput{Title: "Generated", Generate: true, ExpiresAt: "2030-01-01T00:00"})
	if err != nil {
		t.Fatalf("handleEntryCreate failed: %v", err)
	}

	e, err := app.Query(s.app, func(db *vault.Database) (vault.EntryData, error) { return db.Entry(out.UUID) })
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	if len(e.Password) != s.gen.Length {
		t.Errorf("expected generated password of length %d, got %d", s.gen.Length, len(e.Password))
	}
	if !e.Expires || e.ExpiryTime == nil || *e.ExpiryTime != "2030-01-01T00:00" {
		t.Errorf("unexpected expiry %+v", e.ExpiryTime)
	}

	if _, _, err := s.handleEntryCreate(context.Background(), nil, EntryCreateInput{}); err == nil {
		t.Error("expected error for missing title")
	}
}

func TestHandleStatsAndReport(t *testing.T) {
	s := testServer(t, allowAll())
	addTestEntry(t, s, "", "A", "abc")
	addTestEntry(t, s, "", "B", "abc")

	_, stats, err := s.handleStats(context.Background(), nil, StatsInput{})
	if err != nil {
		t.Fatalf("handleStats failed: %v", err)
	}
	if stats.TotalEntries != 2 || stats.WeakPasswords != 2 || stats.ReusedPasswords != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.HealthScore >= 100 {
		t.Errorf("expected a reduced health score, got %d", stats.HealthScore)
	}

	_, report, err := s.handleSecurityReport(context.Background(), nil, SecurityReportInput{IncludeIDs: true})
	if err != nil {
		t.Fatalf("handleSecurityReport failed: %v", err)
	}
	if len(report.Issues) == 0 || len(report.Suggestions) == 0 {
		t.Errorf("expected issues and suggestions, got %+v", report)
	}

	if _, _, err := s.handleSecurityReport(context.Background(), nil, SecurityReportInput{Limit: -1}); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestHandleKdfInfo(t *testing.T) {
	s := testServer(t, allowAll())
	_, out, err := s.handleKdfInfo(context.Background(), nil, KdfInfoInput{})
	if err != nil {
		t.Fatalf("handleKdfInfo failed: %v", err)
	}
	if out.KdfType != "Argon2id" || !out.IsWeak {
		t.Errorf("expected weak Argon2id test parameters, got %+v", out)
	}
}

func TestHandlePasswordGenerate(t *testing.T) {
	s := testServer(t, nil)
	_, out, err := s.handlePasswordGenerate(context.Background(), nil, PasswordGenerateInput{Length: 32})
	if err != nil {
		t.Fatalf("handlePasswordGenerate failed: %v", err)
	}
	if len(out.Password) != 32 || out.Strength == "" {
		t.Errorf("unexpected output %+v", out)
	}

	if _, _, err := s.handlePasswordGenerate(context.Background(), nil, PasswordGenerateInput{Length: 300}); err == nil {
		t.Error("expected error for length out of range")
	}
}

func TestHandleMerge(t *testing.T) {
	s := testServer(t, allowAll())
	_, out, err := s.handleMerge(context.Background(), nil, MergeInput{})
	if err != nil {
		t.Fatalf("handleMerge failed: %v", err)
	}
	if out.Changed {
		t.Error("expected no external changes")
	}
}

func TestAuthorize_DeniedIsAudited(t *testing.T) {
	s := testServer(t, nil)

	if err := s.authorize("entry_list", false); err != nil {
		t.Fatalf("expected read tool to be allowed, got %v", err)
	}
	err := s.authorize("entry_delete", true)
	if !errors.Is(err, ErrToolDenied) {
		t.Fatalf("expected ErrToolDenied, got %v", err)
	}

	events, err := s.app.Audit().ListEvents(audit.Filter{Operation: audit.OpToolDenied})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 denied event, got %d", len(events))
	}
	if events[0].Result != audit.ResultDenied || events[0].Actor.Source != audit.SourceMCP {
		t.Errorf("unexpected event %+v", events[0])
	}
}

// TestSession drives the server through an in-memory MCP client session.
func TestSession(t *testing.T) {
	ctx := context.Background()
	s := testServer(t, nil)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect failed: %v", err)
	}
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect failed: %v", err)
	}
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools.Tools) != len(s.Tools()) {
		t.Errorf("expected %d tools, got %d", len(s.Tools()), len(tools.Tools))
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "stats", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool(stats) failed: %v", err)
	}
	if res.IsError {
		t.Errorf("expected stats to succeed: %+v", res.Content)
	}

	// The default policy is read-only
	res, err = session.CallTool(ctx, &mcp.CallToolParams{Name: "entry_create", Arguments: map[string]any{"title": "x"}})
	if err != nil {
		t.Fatalf("CallTool(entry_create) failed: %v", err)
	}
	if !res.IsError {
		t.Error("expected entry_create to be denied")
	}
}
