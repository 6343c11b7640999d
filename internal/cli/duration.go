package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forest6511/simplepm/pkg/vault"
)

// ParseDuration parses a duration string like "30d", "1y", "24h"
func ParseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", valueStr)
	}

	switch unit {
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(value) * 30 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		// Try standard time.ParseDuration
		return time.ParseDuration(s)
	}
}

// ErrInvalidExpiry is returned by ApplyExpiry for unparseable input.
var ErrInvalidExpiry = errors.New("cli: invalid expiry")

// ApplyExpiry sets the expiry of data from user input: "" or "never"
// clears it, a duration such as "90d" counts from now, anything else must
// be a timestamp in vault.ExpiryLayout or vault.TimeLayout.
func ApplyExpiry(data *vault.EntryData, input string, now time.Time) error {
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, "never") {
		data.Expires = false
		data.ExpiryTime = nil
		return nil
	}

	t, ok := vault.ParseExpiry(input)
	if !ok {
		d, err := ParseDuration(input)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %q (use %s, a duration like 90d, or never)", ErrInvalidExpiry, input, vault.ExpiryLayout)
		}
		t = now.Add(d)
	}

	s := t.UTC().Format(vault.ExpiryLayout)
	data.Expires = true
	data.ExpiryTime = &s
	return nil
}
