// Package mcp exposes the open password database to AI agents as MCP
// (Model Context Protocol) tools over stdio. A policy decides which tools
// run and whether password values are returned or masked.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/simplepm/internal/app"
	"github.com/forest6511/simplepm/internal/logging"
	"github.com/forest6511/simplepm/pkg/passgen"
	"github.com/forest6511/simplepm/pkg/secret"
)

// EnvPassword is read once by NewServer and removed from the environment.
const EnvPassword = "SIMPLEPM_PASSWORD"

// ErrToolDenied is returned for a tool call the policy refuses.
var ErrToolDenied = errors.New("tool denied by MCP policy")

// Server represents the MCP server for simplepm.
type Server struct {
	server  *mcp.Server
	app     *app.App
	policy  *Policy
	log     *slog.Logger
	gen     passgen.Options
	tools   []string
	version string
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// App is the application context. When no database is open yet, Path
	// is opened with Password or EnvPassword.
	App *app.App

	Path     string
	Password string
	KeyFile  []byte

	// Policy defaults to DefaultPolicy.
	Policy *Policy

	Logger  *slog.Logger
	Version string
}

// NewServer creates a new MCP server instance.
func NewServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	if opts.App == nil {
		return nil, errors.New("mcp: application context is required")
	}

	if !opts.App.IsOpen() {
		password := opts.Password
		if password == "" {
			password = os.Getenv(EnvPassword)
			// Clear the environment variable after reading for security
			os.Unsetenv(EnvPassword)
		}
		if password == "" {
			return nil, fmt.Errorf("no password provided: set %s environment variable", EnvPassword)
		}
		if err := opts.App.Open(ctx, opts.Path, secret.New(password), opts.KeyFile); err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	s := &Server{
		app:     opts.App,
		policy:  opts.Policy,
		log:     opts.Logger,
		gen:     opts.App.Config().Generator,
		version: opts.Version,
	}
	if s.policy == nil {
		s.policy = DefaultPolicy()
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.version == "" {
		s.version = "dev"
	}

	s.server = mcp.NewServer(&mcp.Implementation{Name: "simplepm", Version: s.version}, nil)
	s.registerTools()
	return s, nil
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Run serves tool calls on stdio until ctx is done or the client
// disconnects, then closes the database.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()
	s.log.Info("mcp server started", "path", s.app.Path(), "read_only", s.policy.ReadOnly, "tools", len(s.tools))
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close closes the open database.
func (s *Server) Close() error {
	return s.app.Close()
}

// addTool registers a tool behind the policy check. Denied calls are
// audited and fail with ErrToolDenied.
func addTool[In, Out any](s *Server, t *mcp.Tool, mutating bool, h mcp.ToolHandlerFor[In, Out]) {
	s.tools = append(s.tools, t.Name)
	mcp.AddTool(s.server, t, func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		if err := s.authorize(t.Name, mutating); err != nil {
			var zero Out
			return nil, zero, err
		}
		s.log.Debug("tool call", "tool", t.Name)
		return h(ctx, req, in)
	})
}

func (s *Server) authorize(tool string, mutating bool) error {
	allowed, reason := s.policy.IsToolAllowed(tool, mutating)
	if allowed {
		return nil
	}
	s.log.Warn("tool denied", "tool", tool, "reason", reason)
	s.app.RecordDenied(tool, reason)
	return fmt.Errorf("%w: %s", ErrToolDenied, reason)
}
