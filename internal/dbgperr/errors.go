// Package dbgperr provides structured error types for the DBGp bridge.
// Every error carries a machine-readable code, a human-readable message,
// an actionable hint, and optional details, so the tool-invocation layer
// can surface a structured object to its caller instead of an opaque
// string (spec §7).
package dbgperr

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode is a machine-readable error category.
type ErrorCode string

const (
	CodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	CodeNoActiveSession     ErrorCode = "NO_ACTIVE_SESSION"

	CodeConnectionClosed ErrorCode = "CONNECTION_CLOSED"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeFramingError     ErrorCode = "FRAMING_ERROR"

	CodeEngineError       ErrorCode = "ENGINE_ERROR"
	CodeEvaluationFailed  ErrorCode = "EVALUATION_FAILED"
	CodeBreakpointFailed  ErrorCode = "BREAKPOINT_FAILED"
	CodePendingApplyFailed ErrorCode = "PENDING_APPLY_FAILED"

	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	CodeListenFailed ErrorCode = "LISTEN_FAILED"
)

// DebugError is a structured error describing what went wrong in enough
// detail for the caller to recover or retry intelligently.
type DebugError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Hint    string                 `json:"hint,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}
	return sb.String()
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chaining.
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches a key/value pair of additional context.
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause.
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// --- Session errors ---

// SessionNotFound reports that a session id does not name a live session.
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session %q not found", sessionID),
		Hint:    "Use dbgp_list_sessions to see live sessions, or wait for an engine to connect.",
		Details: map[string]interface{}{"sessionId": sessionID},
	}
}

// SessionLimitReached reports that the manager will not accept another
// connection until an existing session closes.
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Close an existing session with dbgp_close_session before accepting another engine.",
		Details: map[string]interface{}{"maxSessions": maxSessions},
	}
}

// NoActiveSession reports that no session could be elected for a tool call
// that omitted an explicit session id.
func NoActiveSession() *DebugError {
	return &DebugError{
		Code:    CodeNoActiveSession,
		Message: "no active session",
		Hint:    "No engine is currently connected. Breakpoints set now are held as pending and applied on attach.",
	}
}

// --- Transport errors ---

// ConnectionClosed reports that the connection closed while a command was
// outstanding or queued.
func ConnectionClosed() *DebugError {
	return &DebugError{
		Code:    CodeConnectionClosed,
		Message: "connection closed",
		Hint:    "The engine disconnected. The session has ended; a new one will be created when the engine reconnects.",
	}
}

// Timeout reports that a command received no response within the
// configured command_timeout.
func Timeout(operation string, timeoutMS int) *DebugError {
	return &DebugError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("%s timed out after %d ms", operation, timeoutMS),
		Hint:    "The engine may be blocked or the program may be in an infinite loop. The connection remains open; try again or issue dbgp_stop.",
		Details: map[string]interface{}{"operation": operation, "timeoutMs": timeoutMS},
	}
}

// FramingError reports a malformed wire frame. The connection itself is not
// terminated by this error; it is recovered by resynchronizing.
func FramingError(reason string) *DebugError {
	return &DebugError{
		Code:    CodeFramingError,
		Message: fmt.Sprintf("malformed frame: %s", reason),
		Hint:    "The engine sent a frame that did not match the DBGp wire format. The connection attempted to resynchronize.",
	}
}

// --- Engine/evaluation errors ---

// EngineError wraps a DBGp <error> element's code and message verbatim, per
// spec §7: engine errors are surfaced to the caller, never masked.
func EngineError(code int, message string) *DebugError {
	return &DebugError{
		Code:    CodeEngineError,
		Message: fmt.Sprintf("engine error %d: %s", code, message),
		Hint:    engineErrorHint(code),
		Details: map[string]interface{}{"code": code},
	}
}

// engineErrorHint maps the documented DBGp error codes to short guidance
// (spec §6). Codes outside the documented set get a generic hint.
func engineErrorHint(code int) string {
	switch code {
	case 1:
		return "The engine could not parse the command; check argument formatting."
	case 2:
		return "A duplicate argument was supplied for this command."
	case 3:
		return "One of the command's options is invalid for this engine."
	case 4:
		return "This command is not implemented by the connected engine."
	case 5:
		return "This command is not available in the session's current state."
	case 100:
		return "The file could not be found by the engine; check the file URI and path mapping."
	case 200, 201, 202, 203, 204, 205, 206:
		return "The breakpoint could not be set, resolved, or removed; check the type, file, and line."
	case 300:
		return "The requested property does not exist in the current context."
	case 301:
		return "The requested stack depth does not exist."
	case 302:
		return "The requested context id does not exist at this stack depth."
	case 900:
		return "The engine does not support the requested encoding."
	case 998:
		return "The engine reported an internal error."
	default:
		return "See the DBGp error code reference for this code's meaning."
	}
}

// EvalError reports an eval command that the engine rejected, kept distinct
// from EngineError per spec §7 item 5.
func EvalError(message string) *DebugError {
	return &DebugError{
		Code:    CodeEvaluationFailed,
		Message: fmt.Sprintf("evaluation failed: %s", message),
		Hint:    "Check that the expression syntax is valid for the debugged language and that referenced variables are in scope.",
	}
}

// BreakpointFailed reports that a breakpoint could not be set, including
// the pending-apply case where the session did not exist yet.
func BreakpointFailed(filename string, line int, reason string) *DebugError {
	return &DebugError{
		Code:    CodeBreakpointFailed,
		Message: fmt.Sprintf("could not set breakpoint at %s:%d", filename, line),
		Hint:    fmt.Sprintf("Reason: %s", reason),
		Details: map[string]interface{}{"filename": filename, "line": line},
	}
}

// PendingApplyFailed reports that a pending breakpoint failed to install on
// a newly attached session. Per spec §4.6/§7, this is logged, not fatal:
// other pending entries still apply and the session remains usable.
func PendingApplyFailed(pendingID, sessionID string, cause error) *DebugError {
	return &DebugError{
		Code:    CodePendingApplyFailed,
		Message: fmt.Sprintf("pending breakpoint %s failed to apply to session %s", pendingID, sessionID),
		Cause:   cause,
		Details: map[string]interface{}{"pendingId": pendingID, "sessionId": sessionID},
	}
}

// --- Caller-usage errors ---

// MissingParameter reports a required tool-call parameter that was absent.
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter %q is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{"parameter": paramName},
	}
}

// InvalidParameter reports a tool-call parameter whose value was rejected.
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter %q: %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{"parameter": paramName, "value": value, "expected": expected},
	}
}

// ListenFailed reports that the accept-loop listener could not bind. This
// is the one error that is fatal to the process, per spec §6.
func ListenFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeListenFailed,
		Message: fmt.Sprintf("failed to bind listener on %s: %v", address, err),
		Hint:    "Check that the configured listen_host/listen_port are valid and not already in use.",
		Cause:   err,
		Details: map[string]interface{}{"address": address},
	}
}

// FromError converts a generic error into a *DebugError, preserving an
// existing one if the chain already carries one.
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Cause:   err,
	}
}
