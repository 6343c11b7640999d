package cli

import (
	"errors"
	"reflect"
	"testing"

	"github.com/forest6511/simplepm/pkg/vault"
)

const (
	idGitHub  = "0b6f8a52-3c1e-4a57-9d3b-2f6c1a0e9b11"
	idGitLab  = "1c7a9b63-4d2f-4b68-8e4c-3a7d2b1f0c22"
	idBank    = "2d8bac74-5e3a-4c79-9f5d-4b8e3c2a1d33"
	idBankOld = "3e9cbd85-6f4b-4d8a-8a6e-5c9f4d3b2e44"
)

func testEntries() []vault.EntryData {
	return []vault.EntryData{
		{UUID: idGitHub, Title: "GitHub"},
		{UUID: idGitLab, Title: "GitLab"},
		{UUID: idBank, Title: "Bank"},
		{UUID: idBankOld, Title: "Bank"},
	}
}

func ids(entries []vault.EntryData) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.UUID
	}
	return out
}

func TestMatchEntries(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		expected []string
		wantErr  error
	}{
		{
			name:     "exact title",
			selector: "GitHub",
			expected: []string{idGitHub},
		},
		{
			name:     "duplicate titles",
			selector: "Bank",
			expected: []string{idBank, idBankOld},
		},
		{
			name:     "wildcard prefix",
			selector: "Git*",
			expected: []string{idGitHub, idGitLab},
		},
		{
			name:     "question mark",
			selector: "Git?ab",
			expected: []string{idGitLab},
		},
		{
			name:     "character class",
			selector: "[BG]*",
			expected: []string{idGitHub, idGitLab, idBank, idBankOld},
		},
		{
			name:     "uuid",
			selector: idBankOld,
			expected: []string{idBankOld},
		},
		{
			name:     "exact title is case sensitive",
			selector: "github",
			wantErr:  vault.ErrEntryNotFound,
		},
		{
			name:     "no match glob",
			selector: "Mail*",
			wantErr:  vault.ErrEntryNotFound,
		},
		{
			name:     "unknown uuid",
			selector: "9f9f9f9f-0000-4000-8000-000000000000",
			wantErr:  vault.ErrEntryNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := MatchEntries(tc.selector, testEntries())

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(ids(result), tc.expected) {
				t.Errorf("expected %v, got %v", tc.expected, ids(result))
			}
		})
	}
}

func TestMatchEntries_InvalidPattern(t *testing.T) {
	if _, err := MatchEntries("[invalid", testEntries()); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestMatchAll(t *testing.T) {
	result, err := MatchAll([]string{"GitLab", "Git*", "Bank"}, testEntries())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{idGitLab, idGitHub, idBank, idBankOld}
	if !reflect.DeepEqual(ids(result), expected) {
		t.Errorf("expected %v, got %v", expected, ids(result))
	}

	if _, err := MatchAll([]string{"GitHub", "Nope"}, testEntries()); err == nil {
		t.Error("expected error for unmatched selector")
	}
}

func TestResolveEntry(t *testing.T) {
	e, err := ResolveEntry("GitHub", testEntries())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.UUID != idGitHub {
		t.Errorf("expected %s, got %s", idGitHub, e.UUID)
	}

	if _, err := ResolveEntry("Bank", testEntries()); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous, got %v", err)
	}
	if _, err := ResolveEntry("Git*", testEntries()); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous for multi-match glob, got %v", err)
	}
}

func TestTitles(t *testing.T) {
	expected := []string{"Bank", "GitHub", "GitLab"}
	if got := Titles(testEntries()); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestIsPattern(t *testing.T) {
	tests := map[string]bool{
		"GitHub": false,
		"Git*":   true,
		"Git?":   true,
		"[ab]":   true,
		"":       false,
	}
	for in, want := range tests {
		if got := IsPattern(in); got != want {
			t.Errorf("IsPattern(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMapKeys(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]int
		expected []string
	}{
		{
			name:     "sorted output",
			input:    map[string]int{"c": 3, "a": 1, "b": 2},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "empty map",
			input:    map[string]int{},
			expected: []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := MapKeys(tc.input)
			if !reflect.DeepEqual(result, tc.expected) {
				t.Errorf("expected %v, got %v", tc.expected, result)
			}
		})
	}
}
