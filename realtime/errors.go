package realtime

import (
	"errors"
	"fmt"
)

// Domain-specific errors for the realtime layer.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrSessionClosed is returned when an operation is issued against a
	// session that has been torn down with Cleanup.
	ErrSessionClosed = errors.New("realtime: session cleaned up")

	// ErrUnauthorized is returned by a transport factory when the control
	// socket rejects the handshake with a 401-class response. The connection
	// manager reacts by invalidating the token and refreshing authority.
	ErrUnauthorized = errors.New("realtime: authorization rejected")
)

// ErrorCode enumerates the protocol error codes carried by inbound error
// frames. The set is fixed by the control-socket contract.
type ErrorCode int

const (
	CodeParseError ErrorCode = iota
	CodeBadRequest
	CodeAccessDenied
	CodeRequestFailed
	CodeUnknownCommand
	CodeSystemNotFound
	CodeModuleNotFound
	CodeUnexpectedFailure
)

// String returns the protocol name of the error code.
func (c ErrorCode) String() string {
	switch c {
	case CodeParseError:
		return "PARSE_ERROR"
	case CodeBadRequest:
		return "BAD_REQUEST"
	case CodeAccessDenied:
		return "ACCESS_DENIED"
	case CodeRequestFailed:
		return "REQUEST_FAILED"
	case CodeUnknownCommand:
		return "UNKNOWN_COMMAND"
	case CodeSystemNotFound:
		return "SYS_NOT_FOUND"
	case CodeModuleNotFound:
		return "MOD_NOT_FOUND"
	default:
		return "UNEXPECTED_FAILURE"
	}
}

// Error is a protocol error rejecting one specific request. It carries the
// server-assigned code, the server message, and the id of the request the
// error frame matched.
type Error struct {
	Code    ErrorCode
	Message string
	ID      int64
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("realtime: request %d failed: %s: %s", e.ID, e.Code, e.Message)
}

// errorCode maps a raw wire code onto the closed enumeration, defaulting to
// CodeUnexpectedFailure for anything outside the known range.
func errorCode(code int) ErrorCode {
	if code < int(CodeParseError) || code > int(CodeModuleNotFound) {
		return CodeUnexpectedFailure
	}
	return ErrorCode(code)
}
