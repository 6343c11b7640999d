// Package security provides password strength estimation and the dashboard
// aggregation computed over a database snapshot.
package security

import (
	"math"
	"unicode"
)

// WeakEntropyBits is the entropy below which a password counts as weak.
const WeakEntropyBits = 40.0

// Character space sizes contributed by each class present in a password.
const (
	lowerSpace  = 26
	upperSpace  = 26
	digitSpace  = 10
	symbolSpace = 33
)

// PasswordStrength represents the strength band of a password.
type PasswordStrength int

const (
	// PasswordWeak is below 40 bits of entropy.
	PasswordWeak PasswordStrength = iota
	// PasswordFair is below 64 bits.
	PasswordFair
	// PasswordGood is below 80 bits.
	PasswordGood
	// PasswordStrong is below 112 bits.
	PasswordStrong
	// PasswordExcellent is 112 bits or more.
	PasswordExcellent
)

// String returns a human-readable representation of the password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	case PasswordExcellent:
		return "Excellent"
	default:
		return "Unknown"
	}
}

// Entropy estimates the entropy of password in bits as length times
// log2 of the character space. The space sums 26 for any lowercase letter,
// 26 for any uppercase letter, 10 for any digit and 33 for any other
// character. Length is measured in bytes. An empty password has 0 bits.
func Entropy(password string) float64 {
	if password == "" {
		return 0
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsNumber(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	space := 0
	if hasLower {
		space += lowerSpace
	}
	if hasUpper {
		space += upperSpace
	}
	if hasDigit {
		space += digitSpace
	}
	if hasSymbol {
		space += symbolSpace
	}
	if space == 0 {
		return 0
	}

	return float64(len(password)) * math.Log2(float64(space))
}

// IsWeak reports whether password falls below WeakEntropyBits.
func IsWeak(password string) bool {
	return Entropy(password) < WeakEntropyBits
}

// StrengthFromEntropy maps an entropy estimate to a strength band.
func StrengthFromEntropy(bits float64) PasswordStrength {
	switch {
	case bits < WeakEntropyBits:
		return PasswordWeak
	case bits < 64:
		return PasswordFair
	case bits < 80:
		return PasswordGood
	case bits < 112:
		return PasswordStrong
	default:
		return PasswordExcellent
	}
}

// CalculateStrength returns the strength band of password.
func CalculateStrength(password string) PasswordStrength {
	return StrengthFromEntropy(Entropy(password))
}
