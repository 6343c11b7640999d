package main

import (
	"strings"
	"testing"

	"github.com/forest6511/simplepm/pkg/passgen"
)

// resetGenerateFlags restores generate's globals after a test.
func resetGenerateFlags(t *testing.T) {
	t.Helper()
	oldLength := generateLength
	oldCount := generateCount
	oldExclude := generateExclude
	oldNoSymbols := generateNoSymbols
	oldNoNumbers := generateNoNumbers
	oldNoUppercase := generateNoUppercase
	oldNoLowercase := generateNoLowercase
	t.Cleanup(func() {
		generateLength = oldLength
		generateCount = oldCount
		generateExclude = oldExclude
		generateNoSymbols = oldNoSymbols
		generateNoNumbers = oldNoNumbers
		generateNoUppercase = oldNoUppercase
		generateNoLowercase = oldNoLowercase
	})
}

func defaultGenerator() passgen.Options {
	return passgen.Options{
		Length:    passgen.DefaultLength,
		Uppercase: true,
		Lowercase: true,
		Numbers:   true,
		Symbols:   true,
	}
}

func TestValidateGenerateFlags(t *testing.T) {
	tests := []struct {
		name        string
		length      int
		count       int
		exclude     string
		expectError bool
	}{
		{
			name:   "valid defaults",
			length: 0,
			count:  defaultPasswordCount,
		},
		{
			name:   "minimum length",
			length: passgen.MinLength,
			count:  1,
		},
		{
			name:   "maximum length",
			length: passgen.MaxLength,
			count:  1,
		},
		{
			name:        "length too long",
			length:      passgen.MaxLength + 1,
			count:       1,
			expectError: true,
		},
		{
			name:        "negative length",
			length:      -1,
			count:       1,
			expectError: true,
		},
		{
			name:        "count zero",
			length:      24,
			count:       0,
			expectError: true,
		},
		{
			name:        "count too high",
			length:      24,
			count:       maxPasswordCount + 1,
			expectError: true,
		},
		{
			name:   "maximum count",
			length: 24,
			count:  maxPasswordCount,
		},
		{
			name:        "exclude too long",
			length:      24,
			count:       1,
			exclude:     strings.Repeat("a", 257),
			expectError: true,
		},
		{
			name:    "valid exclude",
			length:  24,
			count:   1,
			exclude: "0O1lI",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGenerateFlags(t)
			generateLength = tt.length
			generateCount = tt.count
			generateExclude = tt.exclude

			err := validateGenerateFlags(generateOptions(defaultGenerator()))
			if tt.expectError && err == nil {
				t.Errorf("expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestGenerateOptions(t *testing.T) {
	tests := []struct {
		name        string
		length      int
		noLowercase bool
		noUppercase bool
		noNumbers   bool
		noSymbols   bool
		exclude     string
		want        passgen.Options
	}{
		{
			name: "config defaults",
			want: defaultGenerator(),
		},
		{
			name:   "length override",
			length: 32,
			want:   passgen.Options{Length: 32, Uppercase: true, Lowercase: true, Numbers: true, Symbols: true},
		},
		{
			name:      "no symbols",
			noSymbols: true,
			want:      passgen.Options{Length: passgen.DefaultLength, Uppercase: true, Lowercase: true, Numbers: true},
		},
		{
			name:        "letters only",
			noNumbers:   true,
			noSymbols:   true,
			noUppercase: true,
			exclude:     "l",
			want:        passgen.Options{Length: passgen.DefaultLength, Lowercase: true, Exclude: "l"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGenerateFlags(t)
			generateLength = tt.length
			generateNoLowercase = tt.noLowercase
			generateNoUppercase = tt.noUppercase
			generateNoNumbers = tt.noNumbers
			generateNoSymbols = tt.noSymbols
			generateExclude = tt.exclude

			got := generateOptions(defaultGenerator())
			if got != tt.want {
				t.Errorf("generateOptions() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGenerateOptionsKeepsConfigExclude(t *testing.T) {
	resetGenerateFlags(t)
	base := defaultGenerator()
	base.Exclude = "0O"
	generateExclude = "1l"

	got := generateOptions(base)
	if got.Exclude != "0O1l" {
		t.Errorf("Exclude = %q, want %q", got.Exclude, "0O1l")
	}
}

func TestValidateGenerateFlagsEmptyCharset(t *testing.T) {
	resetGenerateFlags(t)
	generateCount = 1
	generateNoLowercase = true
	generateNoUppercase = true
	generateNoNumbers = true
	generateNoSymbols = true

	if err := validateGenerateFlags(generateOptions(defaultGenerator())); err == nil {
		t.Error("expected error for empty character set")
	}
}
