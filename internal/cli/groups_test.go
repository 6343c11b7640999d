package cli

import (
	"errors"
	"testing"

	"github.com/forest6511/simplepm/pkg/vault"
)

const (
	idRoot    = "aaaaaaaa-0000-4000-8000-000000000001"
	idWork    = "aaaaaaaa-0000-4000-8000-000000000002"
	idServers = "aaaaaaaa-0000-4000-8000-000000000003"
	idHome    = "aaaaaaaa-0000-4000-8000-000000000004"
	idDupA    = "aaaaaaaa-0000-4000-8000-000000000005"
	idDupB    = "aaaaaaaa-0000-4000-8000-000000000006"
)

func testTree() vault.GroupData {
	return vault.GroupData{
		UUID: idRoot,
		Name: "personal",
		Children: []vault.GroupData{
			{UUID: idWork, Name: "Work", Children: []vault.GroupData{
				{UUID: idServers, Name: "Servers"},
			}},
			{UUID: idHome, Name: "Home", Children: []vault.GroupData{
				{UUID: idDupA, Name: "Shared"},
				{UUID: idDupB, Name: "Shared"},
			}},
		},
	}
}

func TestResolveGroup(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		expected string
		wantErr  error
	}{
		{name: "empty is root", selector: "", expected: idRoot},
		{name: "slash is root", selector: "/", expected: idRoot},
		{name: "top level", selector: "Work", expected: idWork},
		{name: "nested", selector: "Work/Servers", expected: idServers},
		{name: "leading and trailing slashes", selector: "/Work/Servers/", expected: idServers},
		{name: "uuid", selector: idServers, expected: idServers},
		{name: "uppercase uuid", selector: "AAAAAAAA-0000-4000-8000-000000000004", expected: idHome},
		{name: "missing", selector: "Work/Desktops", wantErr: vault.ErrGroupNotFound},
		{name: "unknown uuid", selector: "bbbbbbbb-0000-4000-8000-000000000001", wantErr: vault.ErrGroupNotFound},
		{name: "ambiguous", selector: "Home/Shared", wantErr: ErrAmbiguous},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, err := ResolveGroup(testTree(), tc.selector)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if g.UUID != tc.expected {
				t.Errorf("expected %s, got %s", tc.expected, g.UUID)
			}
		})
	}
}

func TestSplitParent(t *testing.T) {
	tests := []struct {
		in, parent, name string
	}{
		{"Work/Servers", "Work", "Servers"},
		{"Work", "", "Work"},
		{"/a/b/c/", "a/b", "c"},
		{"", "", ""},
	}
	for _, tc := range tests {
		parent, name := SplitParent(tc.in)
		if parent != tc.parent || name != tc.name {
			t.Errorf("SplitParent(%q) = (%q, %q), want (%q, %q)", tc.in, parent, name, tc.parent, tc.name)
		}
	}
}

func TestGroupPaths(t *testing.T) {
	paths := GroupPaths(testTree())

	expected := map[string]string{
		idRoot:    "/",
		idWork:    "Work",
		idServers: "Work/Servers",
		idHome:    "Home",
		idDupA:    "Home/Shared",
		idDupB:    "Home/Shared",
	}
	if len(paths) != len(expected) {
		t.Fatalf("expected %d paths, got %d", len(expected), len(paths))
	}
	for id, want := range expected {
		if got := paths[id]; got != want {
			t.Errorf("path of %s = %q, want %q", id, got, want)
		}
	}
}
