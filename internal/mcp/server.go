// Package mcpserver exposes sheetsync jobs to AI agents over the Model
// Context Protocol.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"sheetsync/internal/logging"
	"sheetsync/internal/service"
)

// Server is the MCP server for sheetsync.
// It exposes tools, resources and prompts over the configured jobs.
type Server struct {
	mcp  *server.MCPServer
	sync *service.SyncService

	// allowRun gates run_job, the only tool that writes.
	allowRun bool
}

// Deps holds everything the server needs from the CLI layer.
type Deps struct {
	Sync     *service.SyncService
	Version  string
	AllowRun bool
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		sync:     deps.Sync,
		allowRun: deps.AllowRun,
	}

	s.mcp = server.NewMCPServer(
		"sheetsync",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerJobTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// MCP returns the underlying server, for transports other than stdio.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves MCP on stdin/stdout. Logs must not go to stdout.
func (s *Server) ServeStdio() error {
	logging.Default().Info().Bool("allow_run", s.allowRun).Msg("starting MCP stdio server")
	return server.ServeStdio(s.mcp)
}
