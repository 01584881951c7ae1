// Package apierr defines the composite error taxonomy shared by the
// Backend Clients, the Routing Engine, and the Sync & Workflow Engine
// (spec §7). A single tagged-variant type replaces the scattered
// ad-hoc errors the teacher repo used per layer.
package apierr

import (
	"fmt"

	"github.com/pkg/errors" // v0.9.1
)

// Kind tags which family of failure occurred.
type Kind string

const (
	// KindTransport covers unreachable backends, timeouts, connection
	// resets. Retryable by the Routing Engine's fallback.
	KindTransport Kind = "transport"
	// KindProtocol covers non-2xx responses and malformed bodies.
	KindProtocol Kind = "protocol"
	// KindBackendReported covers a 2xx response with success=false and
	// a backend-defined error code.
	KindBackendReported Kind = "backend_reported"
	// KindOrchestrator covers errors the orchestrator itself raises.
	KindOrchestrator Kind = "orchestrator"
)

// Orchestrator-level codes (spec §7).
const (
	CodeNoBackendAvailable = "NO_BACKEND_AVAILABLE"
	CodeInvalidOperation   = "INVALID_OPERATION"
	CodeSyncTimeout        = "SYNC_TIMEOUT"
	CodeSyncAlreadyRunning = "SYNC_ALREADY_RUNNING"
	CodeSyncCancelled      = "SYNC_CANCELLED"
	CodeBatchTooLarge      = "BATCH_TOO_LARGE"
)

// Transport-level codes.
const (
	CodeBridgeUnreachable = "BRIDGE_UNREACHABLE"
	CodeTimeout           = "TIMEOUT"
	CodeConnectionError   = "CONNECTION_ERROR"
)

// Protocol-level codes.
const (
	CodeHTTPError   = "HTTP_ERROR"
	CodeDecodeError = "DECODE_ERROR"
)

// Backend-reported codes recognised across both backends (spec §6/§7).
const (
	CodeEmptyChat          = "EMPTY_CHAT"
	CodeChatNotFound       = "CHAT_NOT_FOUND"
	CodeInvalidJID         = "INVALID_JID"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeWhatsAppAPIError   = "WHATSAPP_API_ERROR"
	CodeCheckpointNotFound = "CHECKPOINT_NOT_FOUND"
)

// retryableBackendCodes is the set of backend-reported codes the
// Routing Engine treats as retryable (spec §4.3's fallback clause and
// §9's resolution that DATABASE_ERROR is NOT retryable).
var retryableBackendCodes = map[string]bool{
	CodeBridgeUnreachable: true,
	CodeTimeout:           true,
	CodeConnectionError:   true,
}

// Error is the orchestrator's single composite error type.
type Error struct {
	Kind       Kind
	Code       string
	HTTPStatus int
	Message    string
	cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the Routing Engine's fallback should retry
// this error on the alternate backend (spec §4.3, §7).
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindProtocol:
		return e.HTTPStatus >= 500 && e.HTTPStatus < 600
	case KindBackendReported:
		return retryableBackendCodes[e.Code]
	default:
		return false
	}
}

// Transport builds a KindTransport error.
func Transport(code, message string, cause error) *Error {
	return &Error{Kind: KindTransport, Code: code, Message: message, cause: errors.WithStack(cause)}
}

// Protocol builds a KindProtocol error.
func Protocol(code string, httpStatus int, message string, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &Error{Kind: KindProtocol, Code: code, HTTPStatus: httpStatus, Message: message, cause: wrapped}
}

// BackendReported builds a KindBackendReported error.
func BackendReported(code, message string) *Error {
	return &Error{Kind: KindBackendReported, Code: code, Message: message}
}

// Orchestrator builds a KindOrchestrator error.
func Orchestrator(code, message string) *Error {
	return &Error{Kind: KindOrchestrator, Code: code, Message: message}
}

// NoBackendAvailable is a convenience constructor for the common
// orchestrator-level failure.
func NoBackendAvailable(operation string) *Error {
	return Orchestrator(CodeNoBackendAvailable, fmt.Sprintf("no backend available for operation %q", operation))
}

// InvalidOperation is a convenience constructor.
func InvalidOperation(name string) *Error {
	return Orchestrator(CodeInvalidOperation, fmt.Sprintf("unknown operation %q", name))
}

// As reports whether err is (or wraps) an *Error, writing it into target.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
