// Package errs defines the closed error taxonomy shared by the process
// supervisor, connection pool, and tool executor, replacing the scattered
// exception-based control flow the teacher's codebase used with a single
// ErrorKind sum type and a user-facing message template per kind.
package errs

import (
	"fmt"
	"strings"
)

// Kind is one of the closed set of user-facing error codes.
type Kind string

const (
	ConnectionFailed   Kind = "CONNECTION_FAILED"
	ConnectionTimeout  Kind = "CONNECTION_TIMEOUT"
	ConnectionLost     Kind = "CONNECTION_LOST"
	ConnectionRefused  Kind = "CONNECTION_REFUSED"
	ServerNotFound     Kind = "SERVER_NOT_FOUND"
	ServerStartFailed  Kind = "SERVER_START_FAILED"
	ServerUnavailable  Kind = "SERVER_UNAVAILABLE"
	ServerCrashed      Kind = "SERVER_CRASHED"
	ToolNotFound       Kind = "TOOL_NOT_FOUND"
	ToolExecutionFailed  Kind = "TOOL_EXECUTION_FAILED"
	ToolExecutionTimeout Kind = "TOOL_EXECUTION_TIMEOUT"
	ToolInvalidParams    Kind = "TOOL_INVALID_PARAMS"
	ConfigNotFound        Kind = "CONFIG_NOT_FOUND"
	ConfigInvalid         Kind = "CONFIG_INVALID"
	ConfigMissingRequired Kind = "CONFIG_MISSING_REQUIRED"
	ProcessStartFailed      Kind = "PROCESS_START_FAILED"
	ProcessCrashed          Kind = "PROCESS_CRASHED"
	ProcessZombie           Kind = "PROCESS_ZOMBIE"
	ProcessPermissionDenied Kind = "PROCESS_PERMISSION_DENIED"
	ResourceExhausted Kind = "RESOURCE_EXHAUSTED"
	ValidationError   Kind = "VALIDATION_ERROR"
	InternalError     Kind = "INTERNAL_ERROR"
	UnknownError      Kind = "UNKNOWN_ERROR"
)

// messageTemplates gives each kind a stable user-facing message template.
var messageTemplates = map[Kind]string{
	ConnectionFailed:      "could not connect to %s",
	ConnectionTimeout:     "connection to %s timed out",
	ConnectionLost:        "connection to %s was lost",
	ConnectionRefused:     "%s refused the connection",
	ServerNotFound:        "server %q is not configured",
	ServerStartFailed:     "server %q failed to start",
	ServerUnavailable:     "server %q is not running",
	ServerCrashed:         "server %q crashed",
	ToolNotFound:          "tool %q was not found",
	ToolExecutionFailed:   "tool %q failed: %s",
	ToolExecutionTimeout:  "tool %q timed out",
	ToolInvalidParams:     "tool %q received invalid parameters: %s",
	ConfigNotFound:        "configuration %q was not found",
	ConfigInvalid:         "configuration %q is invalid: %s",
	ConfigMissingRequired: "configuration is missing required field %q",
	ProcessStartFailed:      "process for %q failed to start: %s",
	ProcessCrashed:          "process for %q crashed",
	ProcessZombie:           "process for %q is a zombie",
	ProcessPermissionDenied: "permission denied starting %q",
	ResourceExhausted: "resource exhausted: %s",
	ValidationError:   "validation failed: %s",
	InternalError:     "internal error: %s",
	UnknownError:      "unknown error: %s",
}

// Error is a classified error carrying its Kind, a rendered message, and
// whether the caller should retry the operation.
type Error struct {
	Kind        Kind
	Message     string
	ShouldRetry bool
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// nonRetryable is the closed set of error kinds the pool and executor must
// never retry (spec: "Non-retryable errors").
var nonRetryable = map[Kind]bool{
	ConfigInvalid:           true,
	ConfigNotFound:          true,
	ProcessPermissionDenied: true,
	ValidationError:         true,
	ToolNotFound:            true,
	ToolInvalidParams:       true,
}

// New builds a classified Error for kind, formatting message with args
// against its template and deciding retryability from the closed
// non-retryable set.
func New(kind Kind, cause error, args ...any) *Error {
	template, ok := messageTemplates[kind]
	if !ok {
		template = string(kind)
	}
	message := template
	if len(args) > 0 {
		message = fmt.Sprintf(template, args...)
	}
	return &Error{
		Kind:        kind,
		Message:     message,
		ShouldRetry: !nonRetryable[kind],
		Cause:       cause,
	}
}

// IsConnectionClass reports whether kind is one of the connection/process
// crash classes that should trigger pool eviction (spec §4.6: "On
// connection-class errors... evict the pooled connection").
func IsConnectionClass(kind Kind) bool {
	switch kind {
	case ConnectionFailed, ConnectionTimeout, ConnectionLost, ConnectionRefused,
		ServerCrashed, ProcessCrashed:
		return true
	default:
		return false
	}
}

// Classify maps raw error text to a Kind using substring heuristics, the
// same style of static classifier the spec describes ("maps error
// text/exception types to a closed ErrorKind enum").
func Classify(err error) Kind {
	if err == nil {
		return UnknownError
	}
	var existing *Error
	if asError(err, &existing) {
		return existing.Kind
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "permission denied"):
		return ProcessPermissionDenied
	case strings.Contains(text, "not found") && strings.Contains(text, "server"):
		return ServerNotFound
	case strings.Contains(text, "not found") && strings.Contains(text, "tool"):
		return ToolNotFound
	case strings.Contains(text, "not found") && strings.Contains(text, "config"):
		return ConfigNotFound
	case strings.Contains(text, "refused"):
		return ConnectionRefused
	case strings.Contains(text, "timeout") || strings.Contains(text, "deadline exceeded"):
		return ConnectionTimeout
	case strings.Contains(text, "crashed") || strings.Contains(text, "exit status"):
		return ProcessCrashed
	case strings.Contains(text, "zombie"):
		return ProcessZombie
	case strings.Contains(text, "broken pipe") || strings.Contains(text, "closed"):
		return ConnectionLost
	case strings.Contains(text, "invalid params") || strings.Contains(text, "invalid argument"):
		return ToolInvalidParams
	default:
		return InternalError
	}
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
