// Command simplepm manages encrypted password databases from the command
// line, an interactive shell, or an MCP server for AI agents.
package main

import "os"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd.Version = version
	registerCompletionFunctions()

	err := rootCmd.Execute()
	teardown()
	if err != nil {
		os.Exit(exitCode(err))
	}
}
