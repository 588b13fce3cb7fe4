package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the full DBGp tool surface (SPEC_FULL §5).
func (s *Server) registerTools() {
	// Session management (always available)
	s.registerListSessions()
	s.registerSessionState()
	s.registerSetActive()
	s.registerCloseSession()

	// Inspection (always available)
	s.registerStack()
	s.registerContexts()
	s.registerVariables()
	s.registerVariableGet()
	s.registerEval()
	s.registerSource()
	s.registerSnapshot()
	s.registerReadOutput()

	// Control (full mode only)
	if s.config.CanUseControlTools() {
		s.registerSetBreakpoint()
		s.registerRemoveBreakpoint()
		s.registerUpdateBreakpoint()
		s.registerListBreakpoints()
		s.registerContinue()
		s.registerStepInto()
		s.registerStepOver()
		s.registerStepOut()
		s.registerPause()
		s.registerStop()
		s.registerDetach()
		s.registerSetVariable()
	}
}

// --- Session management ---

func (s *Server) registerListSessions() {
	tool := mcp.NewTool("dbgp_list_sessions",
		mcp.WithDescription("List all live debug sessions with their status and current location."),
	)
	s.mcpServer.AddTool(tool, s.handleListSessions)
}

func (s *Server) registerSessionState() {
	tool := mcp.NewTool("dbgp_session_state",
		mcp.WithDescription("Get one session's current status, file, and line."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the elected active session.")),
	)
	s.mcpServer.AddTool(tool, s.handleSessionState)
}

func (s *Server) registerSetActive() {
	tool := mcp.NewTool("dbgp_set_active",
		mcp.WithDescription("Override active-session election with an explicit session id."),
		mcp.WithString("sessionId", mcp.Required(), mcp.Description("Session id to make active.")),
	)
	s.mcpServer.AddTool(tool, s.handleSetActive)
}

func (s *Server) registerCloseSession() {
	tool := mcp.NewTool("dbgp_close_session",
		mcp.WithDescription("Close a debug session's connection."),
		mcp.WithString("sessionId", mcp.Required(), mcp.Description("Session id to close.")),
	)
	s.mcpServer.AddTool(tool, s.handleCloseSession)
}

// --- Breakpoints ---

func (s *Server) registerSetBreakpoint() {
	tool := mcp.NewTool("dbgp_set_breakpoint",
		mcp.WithDescription("Set a line, conditional, exception, or call breakpoint. If no session is live, the breakpoint is held as pending and applied to every future session on attach; the returned id is then prefixed pending_."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session, or to set a pending breakpoint when none exists.")),
		mcp.WithString("type", mcp.Description("line (default), exception, or call.")),
		mcp.WithString("filename", mcp.Description("Source file for a line breakpoint.")),
		mcp.WithNumber("line", mcp.Description("Line number for a line breakpoint.")),
		mcp.WithString("condition", mcp.Description("Expression; if present, the breakpoint becomes conditional.")),
		mcp.WithString("exception", mcp.Description("Exception class name, or * for all, for an exception breakpoint.")),
		mcp.WithString("function", mcp.Description("Function name for a call breakpoint.")),
		mcp.WithBoolean("temporary", mcp.Description("Remove the breakpoint after it is hit once.")),
	)
	s.mcpServer.AddTool(tool, s.handleSetBreakpoint)
}

func (s *Server) registerRemoveBreakpoint() {
	tool := mcp.NewTool("dbgp_remove_breakpoint",
		mcp.WithDescription("Remove a breakpoint by id. A pending_ id is removed from the pending store; any other id is removed from the active session."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Breakpoint id, engine-assigned or pending_*.")),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session for non-pending ids.")),
	)
	s.mcpServer.AddTool(tool, s.handleRemoveBreakpoint)
}

func (s *Server) registerUpdateBreakpoint() {
	tool := mcp.NewTool("dbgp_update_breakpoint",
		mcp.WithDescription("Update a breakpoint's enabled state, hit value, or hit condition. A pending_ id accepts only enable/disable."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Breakpoint id, engine-assigned or pending_*.")),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session for non-pending ids.")),
		mcp.WithBoolean("enabled", mcp.Description("New enabled state.")),
		mcp.WithNumber("hitValue", mcp.Description("Hit count threshold.")),
		mcp.WithString("hitCondition", mcp.Description(">=, ==, or %.")),
	)
	s.mcpServer.AddTool(tool, s.handleUpdateBreakpoint)
}

func (s *Server) registerListBreakpoints() {
	tool := mcp.NewTool("dbgp_list_breakpoints",
		mcp.WithDescription("List breakpoints: the active session's engine-side breakpoints plus every still-pending breakpoint."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
	)
	s.mcpServer.AddTool(tool, s.handleListBreakpoints)
}

// --- Execution control ---

func (s *Server) registerContinue() {
	tool := mcp.NewTool("dbgp_continue",
		mcp.WithDescription("Resume execution until the next breakpoint or termination."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
	)
	s.mcpServer.AddTool(tool, s.handleContinue)
}

func (s *Server) registerStepInto() {
	tool := mcp.NewTool("dbgp_step_into",
		mcp.WithDescription("Step into the next statement, descending into calls."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
	)
	s.mcpServer.AddTool(tool, s.handleStepInto)
}

func (s *Server) registerStepOver() {
	tool := mcp.NewTool("dbgp_step_over",
		mcp.WithDescription("Step over the next statement without descending into calls."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
	)
	s.mcpServer.AddTool(tool, s.handleStepOver)
}

func (s *Server) registerStepOut() {
	tool := mcp.NewTool("dbgp_step_out",
		mcp.WithDescription("Step out of the current function."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
	)
	s.mcpServer.AddTool(tool, s.handleStepOut)
}

func (s *Server) registerPause() {
	tool := mcp.NewTool("dbgp_pause",
		mcp.WithDescription("Pause execution. Not supported: DBGp has no native pause command, only breakpoints and stepping. This tool always returns an unsupported error; set a breakpoint instead."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
	)
	s.mcpServer.AddTool(tool, s.handlePause)
}

func (s *Server) registerStop() {
	tool := mcp.NewTool("dbgp_stop",
		mcp.WithDescription("Terminate script execution and end debugging."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
	)
	s.mcpServer.AddTool(tool, s.handleStop)
}

func (s *Server) registerDetach() {
	tool := mcp.NewTool("dbgp_detach",
		mcp.WithDescription("Disconnect from the engine without stopping script execution."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
	)
	s.mcpServer.AddTool(tool, s.handleDetach)
}

// --- Inspection ---

func (s *Server) registerStack() {
	tool := mcp.NewTool("dbgp_stack",
		mcp.WithDescription("Get the current call stack."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
	)
	s.mcpServer.AddTool(tool, s.handleStack)
}

func (s *Server) registerContexts() {
	tool := mcp.NewTool("dbgp_contexts",
		mcp.WithDescription("List the inspectable variable contexts (locals, superglobals, constants) at a stack depth."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
		mcp.WithNumber("depth", mcp.Description("Stack depth (default 0, the top frame).")),
	)
	s.mcpServer.AddTool(tool, s.handleContexts)
}

func (s *Server) registerVariables() {
	tool := mcp.NewTool("dbgp_variables",
		mcp.WithDescription("List variables within one context at a stack depth."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
		mcp.WithNumber("depth", mcp.Description("Stack depth (default 0).")),
		mcp.WithNumber("context", mcp.Description("Context id (default 0, locals).")),
	)
	s.mcpServer.AddTool(tool, s.handleVariables)
}

func (s *Server) registerVariableGet() {
	tool := mcp.NewTool("dbgp_variable_get",
		mcp.WithDescription("Fetch one variable's value and children by fully-qualified name."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Fully-qualified property name, e.g. $var or $obj->field.")),
		mcp.WithNumber("depth", mcp.Description("Stack depth (default 0).")),
		mcp.WithNumber("context", mcp.Description("Context id (default 0, locals).")),
		mcp.WithNumber("page", mcp.Description("Page index for a paginated child list.")),
	)
	s.mcpServer.AddTool(tool, s.handleVariableGet)
}

func (s *Server) registerSetVariable() {
	tool := mcp.NewTool("dbgp_set_variable",
		mcp.WithDescription("Assign a new value to a variable by fully-qualified name."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Fully-qualified property name.")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value, as source-language literal text.")),
		mcp.WithNumber("depth", mcp.Description("Stack depth (default 0).")),
		mcp.WithNumber("context", mcp.Description("Context id (default 0, locals).")),
	)
	s.mcpServer.AddTool(tool, s.handleSetVariable)
}

func (s *Server) registerEval() {
	tool := mcp.NewTool("dbgp_eval",
		mcp.WithDescription("Evaluate an expression in the context of the current stack frame."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
		mcp.WithString("expression", mcp.Required(), mcp.Description("Expression to evaluate.")),
		mcp.WithNumber("depth", mcp.Description("Stack depth (default 0).")),
	)
	s.mcpServer.AddTool(tool, s.handleEval)
}

func (s *Server) registerSource() {
	tool := mcp.NewTool("dbgp_source",
		mcp.WithDescription("Fetch source text for a file from the engine, optionally bounded by line range."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Source file path or file:// URI.")),
		mcp.WithNumber("beginLine", mcp.Description("First line to include.")),
		mcp.WithNumber("endLine", mcp.Description("Last line to include.")),
	)
	s.mcpServer.AddTool(tool, s.handleSource)
}

func (s *Server) registerSnapshot() {
	tool := mcp.NewTool("dbgp_snapshot",
		mcp.WithDescription("Get complete debug state in one call: status, location, stack, and locals. Prefer this over separate dbgp_stack/dbgp_variables calls when starting to inspect a stop."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
	)
	s.mcpServer.AddTool(tool, s.handleSnapshot)
}

func (s *Server) registerReadOutput() {
	tool := mcp.NewTool("dbgp_read_output",
		mcp.WithDescription("Drain buffered stdout/stderr records captured from the debugged script since the last read."),
		mcp.WithString("sessionId", mcp.Description("Session id. Omit to use the active session.")),
	)
	s.mcpServer.AddTool(tool, s.handleReadOutput)
}
