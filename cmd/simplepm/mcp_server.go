package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/simplepm/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   mcpServerName,
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start an MCP server that gives AI agents access to the database.

The server implements the Model Context Protocol (MCP) over stdio transport.
Entry, group, search and statistics tools are available depending on the
policy.

Authentication:
  Set SIMPLEPM_PASSWORD before starting the server. The password is read
  once and immediately cleared from the environment.

  SECURITY NOTE: On Linux, the environment variable may briefly be visible
  via /proc/<pid>/environ before it is cleared.

Policy:
  Create mcp-policy.yaml (mode 0600) in the config directory to allow
  changes or reveal passwords. Without a policy file the server is
  read-only and passwords are masked (e.g., "****WXYZ").

Example MCP client configuration:
  {
    "mcpServers": {
      "simplepm": {
        "type": "stdio",
        "command": "/path/to/simplepm",
        "args": ["mcp-server", "--db", "/path/to/passwords.spdb"],
        "env": {
          "SIMPLEPM_PASSWORD": "your-master-password"
        }
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd.Context())
	},
}

func runMCPServer(parent context.Context) error {
	policy, err := mcp.LoadPolicy(cfgDir)
	if errors.Is(err, mcp.ErrPolicyNotFound) {
		policy = mcp.DefaultPolicy()
	} else if err != nil {
		return err
	}

	path, err := databasePath(parent)
	if err != nil {
		return err
	}
	keyFile, err := readKeyFile()
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(parent, mcp.ServerOptions{
		App:     a,
		Path:    path,
		KeyFile: keyFile,
		Policy:  policy,
		Logger:  logger,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
