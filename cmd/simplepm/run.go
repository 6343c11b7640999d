package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/internal/cli"
	"github.com/forest6511/simplepm/internal/mcp"
	"github.com/forest6511/simplepm/pkg/vault"
)

// Run command flags
var (
	runEntries       []string
	runTimeout       time.Duration
	runNoSanitize    bool
	runEnvPrefix     string
	runObfuscateKeys bool
)

// Exit codes of the run command
const (
	ExitEntryNotFound   = 2
	ExitTimeout         = 124
	ExitCommandNotFound = 127
)

// Entry field suffixes
const (
	suffixUsername = "USERNAME"
	suffixPassword = "PASSWORD"
	suffixURL      = "URL"
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayVarP(&runEntries, "entry", "e", nil, "Entry to inject, as SELECTOR or SELECTOR=PREFIX (glob patterns supported)")
	runCmd.Flags().DurationVarP(&runTimeout, "timeout", "t", 5*time.Minute, "Command timeout")
	runCmd.Flags().BoolVar(&runNoSanitize, "no-sanitize", false, "Disable output sanitization")
	runCmd.Flags().StringVar(&runEnvPrefix, "env-prefix", "", "Prefix for every variable name")
	runCmd.Flags().BoolVar(&runObfuscateKeys, "obfuscate-keys", false, "Obfuscate entry titles in error messages")

	_ = runCmd.MarkFlagRequired("entry")
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command with entry fields as environment variables",
	Long: `Run a command with the fields of the selected entries injected as
environment variables.

Each entry contributes <PREFIX>_USERNAME, <PREFIX>_PASSWORD, <PREFIX>_URL
and one <PREFIX>_<NAME> variable per custom field. The prefix defaults to
the entry title in upper case with other characters replaced by '_'.

Passwords and protected fields are replaced by [REDACTED:<NAME>] in the
command's output unless --no-sanitize is given.

Examples:
  simplepm run -e GitHub -- git push
  simplepm run -e "Production DB=PG" -- psql
  simplepm run -e "aws-*" -- ./deploy.sh
  simplepm run -e API --timeout=30s -- ./script.sh`,
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dashIndex := cmd.ArgsLenAtDash()
		if dashIndex == -1 || dashIndex >= len(args) {
			return errors.New("no command specified; use: simplepm run -e ENTRY -- command [args...]")
		}
		return executeRun(cmd.Context(), args[dashIndex:])
	},
}

func executeRun(ctx context.Context, commandArgs []string) error {
	if err := ensureOpen(ctx); err != nil {
		return err
	}

	all, err := allEntries()
	if err != nil {
		return err
	}
	selected, err := selectRunEntries(runEntries, all)
	if err != nil {
		return &exitError{code: ExitEntryNotFound, err: err}
	}

	secrets, err := collectSecrets(selected, time.Now())
	if err != nil {
		return err
	}
	defer wipeSecrets(secrets)

	env, err := buildEnvironment(os.Environ(), secrets)
	if err != nil {
		return err
	}

	for _, s := range selected {
		if err := a.TouchEntry(s.entry.UUID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to record entry use: %v\n", err)
		}
	}
	return executeCommand(ctx, commandArgs, env, secrets)
}

// runSelection is one entry with the variable prefix it is injected under.
type runSelection struct {
	entry  vault.EntryData
	prefix string
}

// splitEntrySpec separates "SELECTOR=PREFIX". A suffix that is not a
// valid variable name is part of the selector.
func splitEntrySpec(spec string) (selector, prefix string) {
	i := strings.LastIndex(spec, "=")
	if i <= 0 || validateEnvName(spec[i+1:]) != nil {
		return spec, ""
	}
	return spec[:i], spec[i+1:]
}

// selectRunEntries resolves the --entry specs. An explicit prefix needs a
// selector that names exactly one entry.
func selectRunEntries(specs []string, entries []vault.EntryData) ([]runSelection, error) {
	seen := make(map[string]bool)
	var result []runSelection

	for _, spec := range specs {
		selector, prefix := splitEntrySpec(spec)
		matches, err := cli.MatchEntries(selector, entries)
		if err != nil {
			return nil, err
		}
		if prefix != "" && len(matches) > 1 {
			return nil, fmt.Errorf("%w: prefix %s needs a single entry, '%s' matches %d", cli.ErrAmbiguous, prefix, obfuscateKey(selector), len(matches))
		}
		for _, e := range matches {
			if seen[e.UUID] {
				continue
			}
			seen[e.UUID] = true
			p := prefix
			if p == "" {
				p = keyToEnvName(e.Title)
			}
			result = append(result, runSelection{entry: e, prefix: p})
		}
	}

	if len(result) == 0 {
		return nil, errors.New("no entries matched the specified selectors")
	}
	return result, nil
}

// secretData is one variable and its value.
type secretData struct {
	key    string
	value  []byte
	redact bool
}

// wipeSecrets zeroes out all values in memory.
func wipeSecrets(secrets []secretData) {
	for i := range secrets {
		for j := range secrets[i].value {
			secrets[i].value[j] = 0
		}
	}
}

// obfuscateKey hides most of a title in error messages when
// --obfuscate-keys is set.
func obfuscateKey(key string) string {
	if !runObfuscateKeys || len(key) == 0 {
		return key
	}
	if len(key) <= 4 {
		return "***"
	}
	return key[:2] + "***" + key[len(key)-2:]
}

// collectSecrets turns the selected entries into variables. Expired
// entries are rejected and empty fields are left out.
func collectSecrets(selected []runSelection, now time.Time) ([]secretData, error) {
	var secrets []secretData
	for _, s := range selected {
		e := s.entry
		if e.Expires && e.ExpiryTime != nil {
			expiry, ok := vault.ParseExpiry(*e.ExpiryTime)
			if !ok {
				return nil, fmt.Errorf("entry '%s' has an invalid expiry time %q", obfuscateKey(e.Title), *e.ExpiryTime)
			}
			if expiry.Before(now) {
				return nil, fmt.Errorf("entry '%s' expired at %s", obfuscateKey(e.Title), expiry.Format(time.RFC3339))
			}
			if expiry.Before(now.Add(runTimeout)) {
				fmt.Fprintf(os.Stderr, "warning: entry '%s' expires at %s (during command execution)\n",
					obfuscateKey(e.Title), expiry.Format(time.RFC3339))
			}
		}

		add := func(suffix, value string, redact bool) {
			if value == "" {
				return
			}
			secrets = append(secrets, secretData{
				key:    s.prefix + "_" + suffix,
				value:  []byte(value),
				redact: redact,
			})
		}
		add(suffixUsername, e.Username, false)
		add(suffixPassword, e.Password, true)
		add(suffixURL, e.URL, false)
		for _, f := range e.CustomFields {
			add(keyToEnvName(f.Name), f.Value, f.Protected)
		}
	}

	if len(secrets) == 0 {
		return nil, errors.New("selected entries have no fields to inject")
	}
	return secrets, nil
}

// buildEnvironment appends the variables to base. The master password
// variable is never passed on.
func buildEnvironment(base []string, secrets []secretData) ([]string, error) {
	env := make([]string, 0, len(base)+len(secrets))
	for _, kv := range base {
		if !strings.HasPrefix(kv, mcp.EnvPassword+"=") {
			env = append(env, kv)
		}
	}
	names := make(map[string]bool, len(secrets))

	for _, secret := range secrets {
		envName := runEnvPrefix + secret.key

		if err := validateEnvName(envName); err != nil {
			return nil, fmt.Errorf("invalid environment variable name '%s': %w", obfuscateKey(envName), err)
		}
		if err := validateNoNulBytes(envName, secret.value); err != nil {
			return nil, err
		}
		if err := checkReservedEnvVar(envName); err != nil {
			return nil, err
		}
		if names[envName] {
			return nil, fmt.Errorf("variable %s is set by more than one entry field (use SELECTOR=PREFIX)", envName)
		}
		names[envName] = true

		env = append(env, envName+"="+string(secret.value))
	}
	return env, nil
}

// keyToEnvName converts a title or field name to a variable name: letters
// are upper-cased, runs of other characters become one '_' and a leading
// digit gets a '_' in front.
func keyToEnvName(key string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	name := b.String()
	if name == "" {
		return "_"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// validateEnvName checks a POSIX variable name: ^[A-Za-z_][A-Za-z0-9_]*$
func validateEnvName(name string) error {
	if len(name) == 0 {
		return errors.New("environment variable name cannot be empty")
	}

	first := name[0]
	if !((first >= 'A' && first <= 'Z') ||
		(first >= 'a' && first <= 'z') || first == '_') {
		return errors.New("must start with a letter or underscore")
	}

	for i := 1; i < len(name); i++ {
		c := name[i]
		if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') || c == '_') {
			return fmt.Errorf("contains invalid character '%c'", c)
		}
	}
	return nil
}

func validateNoNulBytes(name string, value []byte) error {
	if strings.ContainsRune(name, '\x00') {
		return fmt.Errorf("NUL byte in environment variable name: %q", name)
	}
	if bytes.ContainsRune(value, '\x00') {
		return fmt.Errorf("NUL byte in value for: %q", name)
	}
	return nil
}

// reservedEnvVars must never be overwritten.
var reservedEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"PWD": true, "OLDPWD": true, "TERM": true, "LANG": true,
	"IFS": true, "PS1": true, "PS2": true,
	"LC_ALL": true, "LC_CTYPE": true,
	envDatabase: true, mcp.EnvPassword: true,
}

// ErrReservedEnvVar is returned when a variable would overwrite a reserved one.
var ErrReservedEnvVar = errors.New("cannot overwrite reserved environment variable")

func checkReservedEnvVar(name string) error {
	if reservedEnvVars[name] {
		return fmt.Errorf("%w: %s (use --env-prefix or SELECTOR=PREFIX to avoid collision)", ErrReservedEnvVar, name)
	}
	if strings.HasPrefix(name, "LC_") {
		fmt.Fprintf(os.Stderr, "warning: overwriting locale environment variable: %s\n", name)
	}
	return nil
}

// executeCommand runs the command with the variables in its environment.
func executeCommand(parent context.Context, args []string, env []string, secrets []secretData) error {
	if err := disableCoreDumps(); err != nil {
		return fmt.Errorf("security: failed to disable core dumps: %w", err)
	}

	ctx, cancel := context.WithTimeout(parent, runTimeout)
	defer cancel()

	cmdPath, err := exec.LookPath(args[0])
	if err != nil {
		return &exitError{code: ExitCommandNotFound, err: fmt.Errorf("command not found: %s", args[0])}
	}

	cmd := exec.CommandContext(ctx, cmdPath, args[1:]...)
	cmd.Env = env
	cmd.Cancel = func() error {
		return cmd.Process.Signal(terminateSignal())
	}
	cmd.WaitDelay = 5 * time.Second
	cmd.Stdin = os.Stdin

	var outputWg sync.WaitGroup
	if runNoSanitize {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		stderrPipe, err := cmd.StderrPipe()
		if err != nil {
			return fmt.Errorf("failed to create stderr pipe: %w", err)
		}

		sanitizer := newOutputSanitizer(secrets)
		outputWg.Add(2)
		go func() {
			defer outputWg.Done()
			sanitizer.copy(os.Stdout, stdoutPipe)
		}()
		go func() {
			defer outputWg.Done()
			sanitizer.copy(os.Stderr, stderrPipe)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, signalsToNotify()...)
	defer signal.Stop(sigChan)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan struct{})
	var sigWg sync.WaitGroup
	sigWg.Add(1)
	go func() {
		defer sigWg.Done()
		for {
			select {
			case sig := <-sigChan:
				select {
				case <-done:
					return
				default:
					_ = cmd.Process.Signal(sig)
				}
			case <-done:
				return
			}
		}
	}()

	// Pipes must be drained before Wait closes them.
	outputWg.Wait()
	err = cmd.Wait()
	close(done)
	sigWg.Wait()

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &exitError{code: ExitTimeout, err: fmt.Errorf("command '%s' timed out after %v", args[0], runTimeout)}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &exitError{code: exitErr.ExitCode()}
		}
		return err
	}
	return nil
}

// exitError carries the process exit code of a failed run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func (e *exitError) ExitCode() int {
	return e.code
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) && ee.code > 0 {
		return ee.code
	}
	return 1
}

// outputSanitizer replaces redacted values in a stream. It holds back an
// overlap of len(longest value)-1 bytes so values split across reads are
// still caught.
type outputSanitizer struct {
	maxSecretLen int
	replacements []secretReplacement
}

type secretReplacement struct {
	secret      []byte
	placeholder []byte
}

func newOutputSanitizer(secrets []secretData) *outputSanitizer {
	maxLen := 0
	var replacements []secretReplacement

	for _, secret := range secrets {
		// Values under 4 bytes would redact too much unrelated output
		if !secret.redact || len(secret.value) < 4 {
			continue
		}
		maxLen = max(maxLen, len(secret.value))
		replacements = append(replacements, secretReplacement{
			secret:      secret.value,
			placeholder: []byte("[REDACTED:" + secret.key + "]"),
		})
	}

	return &outputSanitizer{
		maxSecretLen: maxLen,
		replacements: replacements,
	}
}

// binaryThreshold is the share of control characters that marks data as binary.
const binaryThreshold = 0.05

// isBinaryData reports whether data looks binary. A single NUL byte is not
// enough, so output cannot opt out of sanitization that way.
func isBinaryData(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	nonPrintable := 0
	for _, b := range data {
		if (b < 0x20 && b != '\t' && b != '\n' && b != '\r') || b == 0x7F {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(data)) > binaryThreshold
}

// copy reads from src, sanitizes and writes to dst.
func (s *outputSanitizer) copy(dst io.Writer, src io.Reader) {
	buf := make([]byte, 32*1024)
	var overlap []byte

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			data := append(overlap, buf[:n]...)

			binary := isBinaryData(data)
			if !binary {
				data = s.sanitize(data)
			}

			writeLen := len(data)
			if readErr == nil && s.maxSecretLen > 1 && !binary {
				writeLen = max(len(data)-(s.maxSecretLen-1), 0)
			}
			if writeLen > 0 {
				_, _ = dst.Write(data[:writeLen])
			}
			overlap = append([]byte(nil), data[writeLen:]...)
		}

		if readErr != nil {
			if len(overlap) > 0 {
				_, _ = dst.Write(overlap)
			}
			return
		}
	}
}

// sanitize replaces every redacted value with its placeholder.
func (s *outputSanitizer) sanitize(data []byte) []byte {
	for _, r := range s.replacements {
		if bytes.Contains(data, r.secret) {
			data = bytes.ReplaceAll(data, r.secret, r.placeholder)
		}
	}
	return data
}
