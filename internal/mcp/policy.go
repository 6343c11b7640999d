package mcp

import (
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/forest6511/simplepm/internal/config"
)

// Policy is the mcp-policy.yaml schema. It decides which tools an agent
// may call and whether password values leave the process.
type Policy struct {
	Version         int      `yaml:"version"`
	DefaultAction   string   `yaml:"default_action"`
	ReadOnly        bool     `yaml:"read_only"`
	RevealPasswords bool     `yaml:"reveal_passwords"`
	DeniedTools     []string `yaml:"denied_tools"`
	AllowedTools    []string `yaml:"allowed_tools"`
}

// PolicyFileName is the name of the policy file
const PolicyFileName = config.PolicyFile

// Policy action constants
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// ErrPolicyNotFound is returned when no policy file exists
var ErrPolicyNotFound = errors.New("MCP policy file not found")

// ErrPolicyInsecure is returned when policy file has insecure permissions
var ErrPolicyInsecure = errors.New("MCP policy file has insecure permissions")

// ErrPolicySymlink is returned when policy file is a symlink
var ErrPolicySymlink = errors.New("MCP policy file is a symlink")

// ErrPolicyNotOwnedByUser is returned when policy file is not owned by current user
var ErrPolicyNotOwnedByUser = errors.New("MCP policy file not owned by current user")

// DefaultPolicy is used when no policy file exists: every read tool is
// allowed, nothing is written and passwords stay masked.
func DefaultPolicy() *Policy {
	return &Policy{
		Version:       1,
		DefaultAction: ActionAllow,
		ReadOnly:      true,
	}
}

// LoadPolicy loads the MCP policy from the configuration directory. The
// file is opened without following symlinks and checked through the open
// descriptor.
func LoadPolicy(dir string) (*Policy, error) {
	f, err := openPolicyFile(filepath.Join(dir, PolicyFileName))
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) || errors.Is(err, ErrPolicySymlink) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}

	// Must be 0600
	perm := info.Mode().Perm()
	if perm != 0600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	// Default to deny if not specified
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}
	if err := policy.ValidatePolicy(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// IsToolAllowed checks if a tool may be called. Evaluation order:
// denied_tools, then read_only for mutating tools, then allowed_tools,
// then default_action. Tool lists accept glob patterns such as "entry_*".
func (p *Policy) IsToolAllowed(tool string, mutating bool) (allowed bool, reason string) {
	for _, denied := range p.DeniedTools {
		if matchTool(tool, denied) {
			return false, fmt.Sprintf("tool '%s' matches denied pattern '%s'", tool, denied)
		}
	}

	if p.ReadOnly && mutating {
		return false, fmt.Sprintf("tool '%s' modifies the database and the policy is read-only", tool)
	}

	for _, allowed := range p.AllowedTools {
		if matchTool(tool, allowed) {
			return true, ""
		}
	}

	if p.DefaultAction == ActionAllow {
		return true, ""
	}
	return false, fmt.Sprintf("tool '%s' not in allowed_tools list", tool)
}

func matchTool(tool, pattern string) bool {
	if tool == pattern {
		return true
	}
	ok, err := path.Match(pattern, tool)
	return err == nil && ok
}

// ValidatePolicy validates the policy configuration
func (p *Policy) ValidatePolicy() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d", p.Version)
	}

	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("invalid default_action: %s (must be '%s' or '%s')", p.DefaultAction, ActionDeny, ActionAllow)
	}

	for _, list := range [][]string{p.DeniedTools, p.AllowedTools} {
		for _, pattern := range list {
			if _, err := path.Match(pattern, ""); err != nil {
				return fmt.Errorf("invalid tool pattern '%s': %w", pattern, err)
			}
		}
	}
	return nil
}
