package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dbgp-mcp/dbgp-mcp/internal/dap"
	"github.com/dbgp-mcp/dbgp-mcp/internal/dbgperr"
	"github.com/dbgp-mcp/dbgp-mcp/pkg/dbgp"
)

// resolveSession returns the named session, or the elected active session
// if sessionId is omitted, per spec §4.5's active-session contract.
func (s *Server) resolveSession(request mcp.CallToolRequest) (*dap.Session, error) {
	if id, err := request.RequireString("sessionId"); err == nil && id != "" {
		return s.manager.GetSession(id)
	}
	return s.manager.ActiveSession()
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func errResult(err error) (*mcp.CallToolResult, error) {
	de := dbgperr.FromError(err)
	b, mErr := json.Marshal(de)
	if mErr != nil {
		return mcp.NewToolResultError(de.Error()), nil
	}
	return mcp.NewToolResultError(string(b)), nil
}

// --- Session management ---

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.manager.ListSessions()
	out := make([]map[string]interface{}, len(sessions))
	for i, info := range sessions {
		out[i] = sessionInfoJSON(info)
	}
	return jsonResult(map[string]interface{}{"sessions": out})
}

func (s *Server) handleSessionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(sessionInfoJSON(sess.Snapshot()))
}

func (s *Server) handleSetActive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("sessionId")
	if err != nil {
		return errResult(dbgperr.MissingParameter("sessionId", "The session id to make active."))
	}
	if err := s.manager.SetActive(id); err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]interface{}{"sessionId": id, "active": true})
}

func (s *Server) handleCloseSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("sessionId")
	if err != nil {
		return errResult(dbgperr.MissingParameter("sessionId", "The session id to close."))
	}
	if err := s.manager.CloseSession(id); err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]interface{}{"sessionId": id, "closed": true})
}

func sessionInfoJSON(info dbgp.SessionInfo) map[string]interface{} {
	out := map[string]interface{}{
		"sessionId":   info.ID,
		"status":      string(info.Status),
		"currentFile": info.CurrentFile,
		"currentLine": info.CurrentLine,
	}
	if info.Init != nil {
		out["language"] = info.Init.Language
		out["ideKey"] = info.Init.IDEKey
		out["fileUri"] = info.Init.FileURI
	}
	return out
}

// --- Breakpoints ---

func (s *Server) handleSetBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bpType, _ := request.RequireString("type")
	if bpType == "" {
		bpType = "line"
	}

	sess, sessErr := s.resolveSession(request)
	if sessErr != nil {
		// No live session: route to the pending store (spec §4.6).
		return s.setPendingBreakpoint(request, bpType)
	}

	switch bpType {
	case "exception":
		exception, _ := request.RequireString("exception")
		bp, err := sess.SetExceptionBreakpoint(exception)
		if err != nil {
			return errResult(err)
		}
		return jsonResult(breakpointJSON(bp))

	case "call":
		function, _ := request.RequireString("function")
		bp, err := sess.SetCallBreakpoint(function)
		if err != nil {
			return errResult(err)
		}
		return jsonResult(breakpointJSON(bp))

	default:
		filename, err := request.RequireString("filename")
		if err != nil {
			return errResult(dbgperr.MissingParameter("filename", "The source file for a line breakpoint."))
		}
		line, err := request.RequireFloat("line")
		if err != nil {
			return errResult(dbgperr.MissingParameter("line", "The line number for a line breakpoint."))
		}
		condition, _ := request.RequireString("condition")
		temporary := request.GetBool("temporary", false)
		bp, err := sess.SetLineBreakpoint(filename, int(line), condition, temporary)
		if err != nil {
			return errResult(err)
		}
		return jsonResult(breakpointJSON(bp))
	}
}

func (s *Server) setPendingBreakpoint(request mcp.CallToolRequest, bpType string) (*mcp.CallToolResult, error) {
	pb := dbgp.PendingBreakpoint{}
	switch bpType {
	case "exception":
		pb.Type = dbgp.BreakpointException
		pb.Exception, _ = request.RequireString("exception")
	case "call":
		pb.Type = dbgp.BreakpointCall
		pb.Function, _ = request.RequireString("function")
	default:
		pb.Type = dbgp.BreakpointLine
		filename, err := request.RequireString("filename")
		if err != nil {
			return errResult(dbgperr.MissingParameter("filename", "The source file for a line breakpoint."))
		}
		line, err := request.RequireFloat("line")
		if err != nil {
			return errResult(dbgperr.MissingParameter("line", "The line number for a line breakpoint."))
		}
		pb.Filename = filename
		pb.Lineno = int(line)
		pb.Expression, _ = request.RequireString("condition")
	}

	id := s.manager.PendingStore().Add(pb)
	return jsonResult(map[string]interface{}{
		"id":      id,
		"pending": true,
	})
}

func breakpointJSON(bp dbgp.Breakpoint) map[string]interface{} {
	return map[string]interface{}{
		"id":       bp.ID,
		"type":     string(bp.Type),
		"resolved": bp.Resolved,
		"filename": bp.Filename,
		"line":     bp.Lineno,
	}
}

func (s *Server) handleRemoveBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return errResult(dbgperr.MissingParameter("id", "The breakpoint id to remove."))
	}

	if isPendingID(id) {
		if !s.manager.PendingStore().Remove(id) {
			return errResult(dbgperr.InvalidParameter("id", id, "a known pending_* id"))
		}
		return jsonResult(map[string]interface{}{"id": id, "removed": true})
	}

	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	if err := sess.RemoveBreakpoint(id); err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]interface{}{"id": id, "removed": true})
}

func (s *Server) handleUpdateBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return errResult(dbgperr.MissingParameter("id", "The breakpoint id to update."))
	}

	if isPendingID(id) {
		enabled := request.GetBool("enabled", true)
		if !s.manager.PendingStore().SetEnabled(id, enabled) {
			return errResult(dbgperr.InvalidParameter("id", id, "a known pending_* id"))
		}
		return jsonResult(map[string]interface{}{"id": id, "enabled": enabled})
	}

	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}

	var statePtr *dbgp.BreakpointState
	if enabledVal, ok := request.GetArguments()["enabled"]; ok {
		if b, ok := enabledVal.(bool); ok {
			state := dbgp.BreakpointDisabled
			if b {
				state = dbgp.BreakpointEnabled
			}
			statePtr = &state
		}
	}
	var hitValuePtr *int
	if hv, err := request.RequireFloat("hitValue"); err == nil {
		v := int(hv)
		hitValuePtr = &v
	}
	var hitCondPtr *dbgp.HitCondition
	if hc, err := request.RequireString("hitCondition"); err == nil && hc != "" {
		v := dbgp.HitCondition(hc)
		hitCondPtr = &v
	}

	if err := sess.UpdateBreakpoint(id, statePtr, hitValuePtr, hitCondPtr); err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]interface{}{"id": id, "updated": true})
}

func (s *Server) handleListBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var engineBPs []dbgp.Breakpoint
	if sess, err := s.resolveSession(request); err == nil {
		engineBPs, _ = sess.ListBreakpoints()
	}

	pending := s.manager.PendingStore().List()

	out := make([]map[string]interface{}, 0, len(engineBPs)+len(pending))
	for _, bp := range engineBPs {
		out = append(out, breakpointJSON(bp))
	}
	for _, pb := range pending {
		out = append(out, map[string]interface{}{
			"id":       pb.ID,
			"type":     string(pb.Type),
			"pending":  true,
			"enabled":  pb.Enabled,
			"filename": pb.Filename,
			"line":     pb.Lineno,
		})
	}
	return jsonResult(map[string]interface{}{"breakpoints": out})
}

func isPendingID(id string) bool {
	return len(id) >= 8 && id[:8] == "pending_"
}

// --- Execution control ---

func execResultJSON(res dap.ExecResult) map[string]interface{} {
	return map[string]interface{}{
		"status": string(res.Status),
		"file":   res.File,
		"line":   res.Line,
	}
}

func (s *Server) handleContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	res, err := sess.Continue()
	if err != nil {
		return errResult(err)
	}
	return jsonResult(execResultJSON(res))
}

func (s *Server) handleStepInto(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	res, err := sess.StepInto()
	if err != nil {
		return errResult(err)
	}
	return jsonResult(execResultJSON(res))
}

func (s *Server) handleStepOver(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	res, err := sess.StepOver()
	if err != nil {
		return errResult(err)
	}
	return jsonResult(execResultJSON(res))
}

func (s *Server) handleStepOut(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	res, err := sess.StepOut()
	if err != nil {
		return errResult(err)
	}
	return jsonResult(execResultJSON(res))
}

// handlePause always fails: DBGp has no native pause command (spec §4.4
// lists only run/step_into/step_over/step_out/stop/detach).
func (s *Server) handlePause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return errResult(&dbgperrUnsupported{operation: "pause"})
}

func (s *Server) handleStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	res, err := sess.Stop()
	if err != nil {
		return errResult(err)
	}
	return jsonResult(execResultJSON(res))
}

func (s *Server) handleDetach(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	res, err := sess.Detach()
	if err != nil {
		return errResult(err)
	}
	return jsonResult(execResultJSON(res))
}

// --- Inspection ---

func (s *Server) handleStack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	frames, err := sess.StackGet(nil)
	if err != nil {
		return errResult(err)
	}
	out := make([]map[string]interface{}, len(frames))
	for i, f := range frames {
		out[i] = map[string]interface{}{
			"level":    f.Level,
			"type":     string(f.Type),
			"filename": f.Filename,
			"line":     f.Lineno,
			"where":    f.Where,
		}
	}
	return jsonResult(map[string]interface{}{"stack": out})
}

func (s *Server) handleContexts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	depth := intArg(request, "depth", 0)
	ctxs, err := sess.ContextNames(depth)
	if err != nil {
		return errResult(err)
	}
	out := make([]map[string]interface{}, len(ctxs))
	for i, c := range ctxs {
		out[i] = map[string]interface{}{"id": c.ID, "name": c.Name}
	}
	return jsonResult(map[string]interface{}{"contexts": out})
}

func (s *Server) handleVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	depth := intArg(request, "depth", 0)
	contextID := intArg(request, "context", 0)
	props, err := sess.ContextGet(depth, contextID)
	if err != nil {
		return errResult(err)
	}
	out := make([]map[string]interface{}, len(props))
	for i, p := range props {
		out[i] = propertyJSON(p)
	}
	return jsonResult(map[string]interface{}{"variables": out})
}

func (s *Server) handleVariableGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	name, err := request.RequireString("name")
	if err != nil {
		return errResult(dbgperr.MissingParameter("name", "Fully-qualified property name, e.g. $var."))
	}
	depth := intArg(request, "depth", 0)
	contextID := intArg(request, "context", 0)
	var page *int
	if p, err := request.RequireFloat("page"); err == nil {
		v := int(p)
		page = &v
	}
	prop, err := sess.PropertyGet(name, depth, contextID, page)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(propertyJSON(prop))
}

func (s *Server) handleSetVariable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanModifyVariables() {
		return errResult(dbgperr.InvalidParameter("mode", s.config.Mode, "full mode with allowModify enabled"))
	}
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	name, err := request.RequireString("name")
	if err != nil {
		return errResult(dbgperr.MissingParameter("name", "Fully-qualified property name."))
	}
	value, err := request.RequireString("value")
	if err != nil {
		return errResult(dbgperr.MissingParameter("value", "The new value, as source-language literal text."))
	}
	depth := intArg(request, "depth", 0)
	contextID := intArg(request, "context", 0)
	ok, err := sess.PropertySet(name, value, depth, contextID)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]interface{}{"name": name, "success": ok})
}

func (s *Server) handleEval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanEvaluate() {
		return errResult(dbgperr.InvalidParameter("mode", s.config.Mode, "a mode with allowExecute enabled"))
	}
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	expression, err := request.RequireString("expression")
	if err != nil {
		return errResult(dbgperr.MissingParameter("expression", "The expression to evaluate."))
	}
	depth := intArg(request, "depth", 0)
	prop, err := sess.Eval(expression, depth)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(propertyJSON(prop))
}

func (s *Server) handleSource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	filename, err := request.RequireString("filename")
	if err != nil {
		return errResult(dbgperr.MissingParameter("filename", "The source file path or file:// URI."))
	}
	var begin, end *int
	if b, err := request.RequireFloat("beginLine"); err == nil {
		v := int(b)
		begin = &v
	}
	if e, err := request.RequireFloat("endLine"); err == nil {
		v := int(e)
		end = &v
	}
	text, err := sess.Source(filename, begin, end)
	if err != nil {
		return errResult(err)
	}
	return jsonResult(map[string]interface{}{"filename": filename, "text": text})
}

func (s *Server) handleSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}

	snap := sessionInfoJSON(sess.Snapshot())

	frames, _ := sess.StackGet(nil)
	stack := make([]map[string]interface{}, len(frames))
	for i, f := range frames {
		stack[i] = map[string]interface{}{
			"level":    f.Level,
			"filename": f.Filename,
			"line":     f.Lineno,
		}
	}
	snap["stack"] = stack

	if props, err := sess.ContextGet(0, 0); err == nil {
		vars := make([]map[string]interface{}, len(props))
		for i, p := range props {
			vars[i] = propertyJSON(p)
		}
		snap["locals"] = vars
	}

	return jsonResult(snap)
}

func (s *Server) handleReadOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolveSession(request)
	if err != nil {
		return errResult(err)
	}
	records := sess.DrainOutput()
	out := make([]map[string]interface{}, len(records))
	for i, r := range records {
		out[i] = map[string]interface{}{"type": string(r.Type), "content": r.Content}
	}
	return jsonResult(map[string]interface{}{"output": out})
}

func propertyJSON(p *dbgp.Property) map[string]interface{} {
	if p == nil {
		return nil
	}
	out := map[string]interface{}{
		"name":        p.Name,
		"fullname":    p.Fullname,
		"type":        p.Type,
		"value":       p.Value,
		"hasChildren": p.HasChildren,
		"numChildren": p.NumChildren,
	}
	if p.ClassName != "" {
		out["className"] = p.ClassName
	}
	if len(p.Children) > 0 {
		children := make([]map[string]interface{}, len(p.Children))
		for i, c := range p.Children {
			children[i] = propertyJSON(c)
		}
		out["children"] = children
	}
	return out
}

func intArg(request mcp.CallToolRequest, name string, def int) int {
	if v, err := request.RequireFloat(name); err == nil {
		return int(v)
	}
	return def
}

// dbgperrUnsupported reports an operation the protocol itself does not
// support, distinct from a usage or engine error.
type dbgperrUnsupported struct {
	operation string
}

func (e *dbgperrUnsupported) Error() string {
	return fmt.Sprintf("%s is not supported by DBGp: set a breakpoint or use step commands to interrupt execution", e.operation)
}
