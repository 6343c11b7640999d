// Package passgen generates random passwords from selectable character
// classes using crypto/rand.
package passgen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Character set constants
const (
	CharsetLowercase = "abcdefghijklmnopqrstuvwxyz"
	CharsetUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	CharsetDigits    = "0123456789"
	CharsetSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	MinLength     = 1
	MaxLength     = 256
	DefaultLength = 20
	MaxExclude    = 256
)

var (
	// ErrInvalidLength indicates a length outside MinLength..MaxLength.
	ErrInvalidLength = errors.New("passgen: invalid password length")

	// ErrEmptyCharset indicates no characters remain to choose from.
	ErrEmptyCharset = errors.New("passgen: at least one character type must be selected")
)

// Options selects length and character classes.
type Options struct {
	Length    int    `yaml:"length" json:"length"`
	Uppercase bool   `yaml:"uppercase" json:"uppercase"`
	Lowercase bool   `yaml:"lowercase" json:"lowercase"`
	Numbers   bool   `yaml:"numbers" json:"numbers"`
	Symbols   bool   `yaml:"symbols" json:"symbols"`
	Exclude   string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// DefaultOptions enables every class at DefaultLength.
func DefaultOptions() Options {
	return Options{
		Length:    DefaultLength,
		Uppercase: true,
		Lowercase: true,
		Numbers:   true,
		Symbols:   true,
	}
}

// Validate checks the length and exclusion limits.
func (o Options) Validate() error {
	if o.Length < MinLength || o.Length > MaxLength {
		return fmt.Errorf("%w: must be between %d and %d", ErrInvalidLength, MinLength, MaxLength)
	}
	if len(o.Exclude) > MaxExclude {
		return fmt.Errorf("passgen: exclude string must be at most %d characters", MaxExclude)
	}
	return nil
}

// Charset returns the characters selected by o, minus exclusions.
func (o Options) Charset() (string, error) {
	var charset strings.Builder
	if o.Uppercase {
		charset.WriteString(CharsetUppercase)
	}
	if o.Lowercase {
		charset.WriteString(CharsetLowercase)
	}
	if o.Numbers {
		charset.WriteString(CharsetDigits)
	}
	if o.Symbols {
		charset.WriteString(CharsetSymbols)
	}

	result := charset.String()
	if o.Exclude != "" {
		result = removeChars(result, o.Exclude)
	}
	if result == "" {
		return "", ErrEmptyCharset
	}
	return result, nil
}

// Generate returns a password drawn uniformly from o's charset.
func Generate(o Options) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	charset, err := o.Charset()
	if err != nil {
		return "", err
	}

	charsetLen := big.NewInt(int64(len(charset)))
	password := make([]byte, o.Length)
	for i := range password {
		idx, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		password[i] = charset[idx.Int64()]
	}
	return string(password), nil
}

// removeChars removes specified characters from a string
func removeChars(s, chars string) string {
	exclude := make(map[rune]bool)
	for _, c := range chars {
		exclude[c] = true
	}

	var result strings.Builder
	for _, c := range s {
		if !exclude[c] {
			result.WriteRune(c)
		}
	}
	return result.String()
}
