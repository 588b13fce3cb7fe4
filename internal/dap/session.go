package dap

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dbgp-mcp/dbgp-mcp/internal/dbgperr"
	"github.com/dbgp-mcp/dbgp-mcp/internal/pathurl"
	"github.com/dbgp-mcp/dbgp-mcp/pkg/dbgp"
)

// Limits carries the negotiated inspection limits a session requests on
// attach, per spec §4.4/§6.
type Limits struct {
	MaxDepth    int
	MaxChildren int
	MaxData     int
	ShowHidden  bool
}

// StateChange is emitted after every status or location update.
type StateChange struct {
	SessionID   string
	Status      dbgp.Status
	CurrentFile string
	CurrentLine int
}

// Session wraps one Connection and exposes the debugger command surface
// with typed results. It owns status and location tracking, per spec §4.4.
type Session struct {
	ID         string
	conn       *Connection
	limits     Limits
	createdAt  time.Time
	pathMapper pathurl.Mapper

	mu          sync.RWMutex
	status      dbgp.Status
	currentFile string
	currentLine int
	init        *dbgp.InitRecord
	breakpoints map[string]dbgp.Breakpoint

	stateCh chan StateChange
	closed  bool

	outputMu sync.Mutex
	output   []dbgp.Stream
}

// outputRingCapacity bounds the per-session buffered stream records that
// dbgp_read_output can drain. Older records are dropped once the ring
// fills, per the Open Question resolved in SPEC_FULL.md §10.
const outputRingCapacity = 500

// NewSession wraps an already-running Connection. The caller must already
// have received the connection's init event before constructing a Session
// (spec §4.5: registration is deferred until init arrives).
func NewSession(id string, conn *Connection, limits Limits) *Session {
	return &Session{
		ID:          id,
		conn:        conn,
		limits:      limits,
		createdAt:   time.Now(),
		pathMapper:  pathurl.IdentityMapper{},
		status:      dbgp.StatusStarting,
		breakpoints: make(map[string]dbgp.Breakpoint),
		stateCh:     make(chan StateChange, 32),
		init:        conn.InitRecord(),
	}
}

// SetPathMapper installs the container/host path translator this session
// uses when sending filenames to the engine and reading locations back from
// it. Defaults to pathurl.IdentityMapper.
func (s *Session) SetPathMapper(m pathurl.Mapper) {
	s.mu.Lock()
	s.pathMapper = m
	s.mu.Unlock()
}

// StateChanges returns the channel of state-change events this session
// emits after every status or location update.
func (s *Session) StateChanges() <-chan StateChange {
	return s.stateCh
}

// CreatedAt returns the session's creation timestamp. Active-session
// election does not read it; the manager keeps creation order itself.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// InitRecord returns the cached init record received on attach.
func (s *Session) InitRecord() *dbgp.InitRecord {
	return s.init
}

// Snapshot returns the session's current externally-visible state.
func (s *Session) Snapshot() dbgp.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dbgp.SessionInfo{
		ID:          s.ID,
		Status:      s.status,
		CurrentFile: s.currentFile,
		CurrentLine: s.currentLine,
		Init:        s.init,
		StartTime:   s.createdAt,
	}
}

// Initialize negotiates feature limits on attach. Failure to negotiate a
// single feature is logged and non-fatal, per spec §4.4.
func (s *Session) Initialize() {
	features := map[string]string{
		"max_depth":    itoaLimit(s.limits.MaxDepth),
		"max_children": itoaLimit(s.limits.MaxChildren),
		"max_data":     itoaLimit(s.limits.MaxData),
		"show_hidden":  boolArg(s.limits.ShowHidden),
	}
	for name, value := range features {
		if _, err := s.conn.SendCommand("feature_set", map[string]string{"n": name, "v": value}, nil); err != nil {
			log.Printf("dap: session %s: feature_set %s failed: %v", s.ID, name, err)
		}
	}
}

func itoaLimit(n int) string {
	return fmt.Sprintf("%d", n)
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// send issues a command and applies the status/location tracking that spec
// §4.4 requires for every response, regardless of which operation sent it.
func (s *Session) send(cmd string, args map[string]string, data []byte) (*dbgp.Response, error) {
	resp, err := s.conn.SendCommand(cmd, args, data)
	if err != nil {
		if err == ErrConnectionClosed {
			s.markClosed()
		}
		return nil, err
	}
	s.applyTracking(resp)
	return resp, nil
}

func (s *Session) applyTracking(resp *dbgp.Response) {
	var mappedFile string
	if resp.Location != nil && resp.Location.Filename != "" {
		mappedFile = s.fromEngineFileURI(resp.Location.Filename)
	}

	s.mu.Lock()
	changed := false
	if resp.Status != "" && resp.Status != s.status {
		s.status = resp.Status
		changed = true
	}
	if resp.Location != nil {
		if mappedFile != "" {
			s.currentFile = mappedFile
			changed = true
		}
		s.currentLine = resp.Location.Lineno
		changed = true
	}
	status := s.status
	file := s.currentFile
	line := s.currentLine
	s.mu.Unlock()

	if changed {
		s.emitState(status, file, line)
	}
}

func (s *Session) emitState(status dbgp.Status, file string, line int) {
	select {
	case s.stateCh <- StateChange{SessionID: s.ID, Status: status, CurrentFile: file, CurrentLine: line}:
	default:
		log.Printf("dap: session %s: state channel full, dropping state change", s.ID)
	}
}

func (s *Session) markClosed() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.status = dbgp.StatusStopped
	s.mu.Unlock()
	s.emitState(dbgp.StatusStopped, "", 0)
	close(s.stateCh)
}

// toEngineFileURI maps a filename given by the caller (container-side) onto
// the engine's filesystem view and wraps it as a file:// URI, per spec §4.4
// and the pathurl.Mapper contract of §6.
func (s *Session) toEngineFileURI(path string) string {
	s.mu.RLock()
	mapper := s.pathMapper
	s.mu.RUnlock()
	return pathurl.ToFileURI(mapper.ToHost(pathurl.FromFileURI(path)))
}

// fromEngineFileURI maps a file:// URI the engine reported (host-side) back
// onto the bridge's own filesystem view.
func (s *Session) fromEngineFileURI(uri string) string {
	if uri == "" {
		return uri
	}
	s.mu.RLock()
	mapper := s.pathMapper
	s.mu.RUnlock()
	return pathurl.ToFileURI(mapper.ToContainer(pathurl.FromFileURI(uri)))
}

// --- Breakpoints ---

// SetLineBreakpoint installs a line or conditional breakpoint.
func (s *Session) SetLineBreakpoint(filename string, line int, condition string, temporary bool) (dbgp.Breakpoint, error) {
	containerURI := pathurl.ToFileURI(filename)
	args := map[string]string{
		"t": "line",
		"f": s.toEngineFileURI(filename),
		"n": fmt.Sprintf("%d", line),
	}
	var data []byte
	if condition != "" {
		args["t"] = "conditional"
		data = []byte(condition)
	}
	if temporary {
		args["r"] = "1"
	}
	resp, err := s.send("breakpoint_set", args, data)
	if err != nil {
		return dbgp.Breakpoint{}, err
	}
	if resp.Error != nil {
		return dbgp.Breakpoint{}, dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	result := parseBreakpointSetResult(resp.Root)
	bp := dbgp.Breakpoint{
		ID:         result.ID,
		Type:       dbgp.BreakpointType(args["t"]),
		State:      dbgp.BreakpointEnabled,
		Resolved:   result.Resolved,
		Filename:   containerURI,
		Lineno:     line,
		Expression: condition,
		Temporary:  temporary,
	}
	s.cacheBreakpoint(bp)
	return bp, nil
}

// SetExceptionBreakpoint installs a breakpoint on a named exception, or "*"
// for all exceptions.
func (s *Session) SetExceptionBreakpoint(exceptionName string) (dbgp.Breakpoint, error) {
	resp, err := s.send("breakpoint_set", map[string]string{"t": "exception", "x": exceptionName}, nil)
	if err != nil {
		return dbgp.Breakpoint{}, err
	}
	if resp.Error != nil {
		return dbgp.Breakpoint{}, dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	result := parseBreakpointSetResult(resp.Root)
	bp := dbgp.Breakpoint{ID: result.ID, Type: dbgp.BreakpointException, State: dbgp.BreakpointEnabled, Resolved: result.Resolved, Exception: exceptionName}
	s.cacheBreakpoint(bp)
	return bp, nil
}

// SetCallBreakpoint installs a breakpoint on entry to a named function.
func (s *Session) SetCallBreakpoint(functionName string) (dbgp.Breakpoint, error) {
	resp, err := s.send("breakpoint_set", map[string]string{"t": "call", "m": functionName}, nil)
	if err != nil {
		return dbgp.Breakpoint{}, err
	}
	if resp.Error != nil {
		return dbgp.Breakpoint{}, dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	result := parseBreakpointSetResult(resp.Root)
	bp := dbgp.Breakpoint{ID: result.ID, Type: dbgp.BreakpointCall, State: dbgp.BreakpointEnabled, Resolved: result.Resolved, Function: functionName}
	s.cacheBreakpoint(bp)
	return bp, nil
}

// RemoveBreakpoint removes an engine-assigned breakpoint.
func (s *Session) RemoveBreakpoint(id string) error {
	resp, err := s.send("breakpoint_remove", map[string]string{"d": id}, nil)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	s.mu.Lock()
	delete(s.breakpoints, id)
	s.mu.Unlock()
	return nil
}

// UpdateBreakpoint updates an engine-assigned breakpoint's enabled state,
// hit value, or hit condition.
func (s *Session) UpdateBreakpoint(id string, state *dbgp.BreakpointState, hitValue *int, hitCondition *dbgp.HitCondition) error {
	args := map[string]string{"d": id}
	if state != nil {
		args["s"] = string(*state)
	}
	if hitValue != nil {
		args["h"] = fmt.Sprintf("%d", *hitValue)
	}
	if hitCondition != nil {
		args["o"] = string(*hitCondition)
	}
	resp, err := s.send("breakpoint_update", args, nil)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	return nil
}

// ListBreakpoints fetches the engine's breakpoint list and replaces the
// local cache.
func (s *Session) ListBreakpoints() ([]dbgp.Breakpoint, error) {
	resp, err := s.send("breakpoint_list", nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	bps := parseBreakpoints(resp.Root)
	s.mu.Lock()
	s.breakpoints = make(map[string]dbgp.Breakpoint, len(bps))
	for _, bp := range bps {
		s.breakpoints[bp.ID] = bp
	}
	s.mu.Unlock()
	return bps, nil
}

func (s *Session) cacheBreakpoint(bp dbgp.Breakpoint) {
	s.mu.Lock()
	s.breakpoints[bp.ID] = bp
	s.mu.Unlock()
}

// --- Execution control ---

// ExecResult is the typed result of a run/step/stop/detach command.
type ExecResult struct {
	Status dbgp.Status
	File   string
	Line   int
}

func (s *Session) execCommand(cmd string) (ExecResult, error) {
	resp, err := s.send(cmd, nil, nil)
	if err != nil {
		return ExecResult{}, err
	}
	res := ExecResult{Status: resp.Status}
	if resp.Location != nil {
		res.File = resp.Location.Filename
		res.Line = resp.Location.Lineno
	}
	return res, nil
}

// Continue resumes execution until the next breakpoint or termination.
func (s *Session) Continue() (ExecResult, error) { return s.execCommand("run") }

// StepInto steps into the next statement, descending into calls.
func (s *Session) StepInto() (ExecResult, error) { return s.execCommand("step_into") }

// StepOver steps over the next statement without descending into calls.
func (s *Session) StepOver() (ExecResult, error) { return s.execCommand("step_over") }

// StepOut steps out of the current function.
func (s *Session) StepOut() (ExecResult, error) { return s.execCommand("step_out") }

// Stop terminates script execution and ends debugging.
func (s *Session) Stop() (ExecResult, error) { return s.execCommand("stop") }

// Detach disconnects from the engine without stopping script execution.
func (s *Session) Detach() (ExecResult, error) { return s.execCommand("detach") }

// --- Inspection ---

// StackDepth returns the current number of stack frames.
func (s *Session) StackDepth() (int, error) {
	resp, err := s.send("stack_depth", nil, nil)
	if err != nil {
		return 0, err
	}
	if resp.Error != nil {
		return 0, dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	return atoi(resp.Root.Attr("depth")), nil
}

// StackGet returns stack frames, optionally starting at the given depth.
func (s *Session) StackGet(depth *int) ([]dbgp.StackFrame, error) {
	var args map[string]string
	if depth != nil {
		args = map[string]string{"d": fmt.Sprintf("%d", *depth)}
	}
	resp, err := s.send("stack_get", args, nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	return parseStackFrames(resp.Root), nil
}

// ContextNames lists the inspectable variable contexts at a stack depth.
func (s *Session) ContextNames(depth int) ([]dbgp.Context, error) {
	resp, err := s.send("context_names", map[string]string{"d": fmt.Sprintf("%d", depth)}, nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	return parseContexts(resp.Root), nil
}

// ContextGet lists the properties within one context at a stack depth.
func (s *Session) ContextGet(depth, contextID int) ([]*dbgp.Property, error) {
	resp, err := s.send("context_get", map[string]string{
		"d": fmt.Sprintf("%d", depth),
		"c": fmt.Sprintf("%d", contextID),
	}, nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	return parseProperties(resp.Root), nil
}

// PropertyGet fetches one property (variable) by fully-qualified name.
func (s *Session) PropertyGet(name string, depth, contextID int, page *int) (*dbgp.Property, error) {
	args := map[string]string{
		"n": name,
		"d": fmt.Sprintf("%d", depth),
		"c": fmt.Sprintf("%d", contextID),
	}
	if page != nil {
		args["p"] = fmt.Sprintf("%d", *page)
	}
	resp, err := s.send("property_get", args, nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	return parseProperty(resp.Root.Child("property")), nil
}

// PropertySet assigns a new value to a property by name.
func (s *Session) PropertySet(name, value string, depth, contextID int) (bool, error) {
	args := map[string]string{
		"n": name,
		"d": fmt.Sprintf("%d", depth),
		"c": fmt.Sprintf("%d", contextID),
	}
	resp, err := s.send("property_set", args, []byte(value))
	if err != nil {
		return false, err
	}
	if resp.Error != nil {
		return false, dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	return resp.Success, nil
}

// Eval evaluates an expression in the context of the current stack frame.
// An engine error is raised as a distinct evaluation error, per spec §4.4.
func (s *Session) Eval(expression string, depth int) (*dbgp.Property, error) {
	args := map[string]string{"d": fmt.Sprintf("%d", depth)}
	resp, err := s.send("eval", args, []byte(expression))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, dbgperr.EvalError(resp.Error.Message)
	}
	return parseProperty(resp.Root.Child("property")), nil
}

// Source fetches decoded source text for a file, optionally bounded by
// begin/end line numbers.
func (s *Session) Source(filename string, beginLine, endLine *int) (string, error) {
	args := map[string]string{"f": s.toEngineFileURI(filename)}
	if beginLine != nil {
		args["b"] = fmt.Sprintf("%d", *beginLine)
	}
	if endLine != nil {
		args["e"] = fmt.Sprintf("%d", *endLine)
	}
	resp, err := s.send("source", args, nil)
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	text, _ := decodeText(resp.Root)
	return text, nil
}

// StreamRedirect toggles stdout/stderr redirection to the client. c follows
// DBGp's {0=disable,1=copy,2=redirect} convention.
func (s *Session) StreamRedirect(stream string, c int) (bool, error) {
	resp, err := s.send(stream, map[string]string{"c": fmt.Sprintf("%d", c)}, nil)
	if err != nil {
		return false, err
	}
	if resp.Error != nil {
		return false, dbgperr.EngineError(resp.Error.Code, resp.Error.Message)
	}
	return resp.Success, nil
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// BufferOutput appends a stream record to the session's output ring,
// dropping the oldest record if the ring is full.
func (s *Session) BufferOutput(rec dbgp.Stream) {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	s.output = append(s.output, rec)
	if len(s.output) > outputRingCapacity {
		s.output = s.output[len(s.output)-outputRingCapacity:]
	}
}

// DrainOutput returns every buffered stream record and clears the ring.
func (s *Session) DrainOutput() []dbgp.Stream {
	s.outputMu.Lock()
	defer s.outputMu.Unlock()
	out := s.output
	s.output = nil
	return out
}
