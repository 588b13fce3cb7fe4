// Package mcpserver provides the Model Context Protocol (MCP) server
// implementation exposing the DBGp bridge's session manager to an AI
// assistant client.
//
// It provides the tool surface:
//
// Session management (always available):
//   - dbgp_list_sessions, dbgp_session_state, dbgp_set_active, dbgp_close_session
//
// Inspection (always available):
//   - dbgp_stack, dbgp_contexts, dbgp_variables, dbgp_variable_get, dbgp_eval,
//     dbgp_source, dbgp_snapshot, dbgp_read_output
//
// Control (full mode only):
//   - dbgp_set_breakpoint, dbgp_remove_breakpoint, dbgp_update_breakpoint,
//     dbgp_list_breakpoints, dbgp_continue, dbgp_step_into, dbgp_step_over,
//     dbgp_step_out, dbgp_pause, dbgp_stop, dbgp_detach, dbgp_set_variable
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/dbgp-mcp/dbgp-mcp/internal/config"
	"github.com/dbgp-mcp/dbgp-mcp/internal/dap"
)

// Server wraps the MCP server with the DBGp session manager.
type Server struct {
	mcpServer *server.MCPServer
	manager   *dap.SessionManager
	config    *config.Config
}

// NewServer creates the MCP server and registers every tool.
func NewServer(cfg *config.Config, manager *dap.SessionManager) *Server {
	mcpServer := server.NewMCPServer(
		"dbgp-mcp",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		manager:   manager,
		config:    cfg,
	}

	s.registerTools()

	return s
}

// registerTools is defined in tools.go.

// ServeStdio starts the server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Manager returns the underlying session manager.
func (s *Server) Manager() *dap.SessionManager {
	return s.manager
}

// Config returns the server configuration.
func (s *Server) Config() *config.Config {
	return s.config
}
