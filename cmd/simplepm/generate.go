package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/pkg/passgen"
)

const (
	defaultPasswordCount = 1
	maxPasswordCount     = 100
)

// Generate command flags
var (
	generateLength      int
	generateCount       int
	generateNoSymbols   bool
	generateNoNumbers   bool
	generateNoUppercase bool
	generateNoLowercase bool
	generateExclude     string
	generateCopy        bool
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().IntVarP(&generateLength, "length", "l", 0, fmt.Sprintf("Password length (%d-%d, default from config)", passgen.MinLength, passgen.MaxLength))
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", defaultPasswordCount, fmt.Sprintf("Number of passwords to generate (1-%d)", maxPasswordCount))
	generateCmd.Flags().BoolVar(&generateNoSymbols, "no-symbols", false, "Exclude symbols")
	generateCmd.Flags().BoolVar(&generateNoNumbers, "no-numbers", false, "Exclude numbers")
	generateCmd.Flags().BoolVar(&generateNoUppercase, "no-uppercase", false, "Exclude uppercase letters")
	generateCmd.Flags().BoolVar(&generateNoLowercase, "no-lowercase", false, "Exclude lowercase letters")
	generateCmd.Flags().StringVar(&generateExclude, "exclude", "", "Characters to exclude")
	generateCmd.Flags().BoolVarP(&generateCopy, "copy", "c", false, "Copy first password to clipboard (accessible to all processes)")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate secure random passwords",
	Long: `Generate cryptographically secure random passwords. No database is
opened. Defaults come from the generator section of config.yaml.

Examples:
  # Generate a password with the configured defaults
  simplepm generate

  # Generate a 32-character password without symbols
  simplepm generate -l 32 --no-symbols

  # Generate 5 passwords
  simplepm generate -n 5

  # Generate and copy to clipboard
  simplepm generate -c

  # Generate password excluding ambiguous characters
  simplepm generate --exclude "0O1lI"`,
	RunE: executeGenerate,
}

func executeGenerate(cmd *cobra.Command, args []string) error {
	opts := generateOptions(cfg.Generator)
	if err := validateGenerateFlags(opts); err != nil {
		return err
	}

	passwords := make([]string, generateCount)
	for i := range passwords {
		password, err := passgen.Generate(opts)
		if err != nil {
			return fmt.Errorf("failed to generate password: %w", err)
		}
		passwords[i] = password
	}

	for _, password := range passwords {
		fmt.Println(password)
	}

	// Copy to clipboard if requested
	if generateCopy && len(passwords) > 0 {
		if err := copyToClipboard(passwords[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to copy to clipboard: %v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, "Password copied to clipboard")
		}
	}

	return nil
}

// generateOptions applies the command flags on top of the configured
// generator defaults. Flags only ever narrow the character set.
func generateOptions(base passgen.Options) passgen.Options {
	opts := base
	if generateLength != 0 {
		opts.Length = generateLength
	}
	if generateNoSymbols {
		opts.Symbols = false
	}
	if generateNoNumbers {
		opts.Numbers = false
	}
	if generateNoUppercase {
		opts.Uppercase = false
	}
	if generateNoLowercase {
		opts.Lowercase = false
	}
	opts.Exclude += generateExclude
	return opts
}

// validateGenerateFlags validates the generate command flags
func validateGenerateFlags(opts passgen.Options) error {
	if generateCount < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	if generateCount > maxPasswordCount {
		return fmt.Errorf("count must be at most %d", maxPasswordCount)
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if _, err := opts.Charset(); err != nil {
		return fmt.Errorf("character set is empty: adjust flags to include at least one character type")
	}
	return nil
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		// Try wl-copy on Wayland, then xclip and xsel
		if _, err := exec.LookPath("wl-copy"); err == nil && os.Getenv("WAYLAND_DISPLAY") != "" {
			cmd = exec.Command("wl-copy")
		} else if _, err := exec.LookPath("xclip"); err == nil {
			cmd = exec.Command("xclip", "-selection", "clipboard")
		} else if _, err := exec.LookPath("xsel"); err == nil {
			cmd = exec.Command("xsel", "--clipboard", "--input")
		} else {
			return fmt.Errorf("clipboard tool not found: install wl-clipboard, xclip or xsel")
		}
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("clipboard not supported on %s", runtime.GOOS)
	}

	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
