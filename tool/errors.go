package tool

import (
	"errors"
	"fmt"
)

// ErrorKind classifies tool failures.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindInvalidInput     ErrorKind = "invalid_input"
	KindExecutionFailed  ErrorKind = "execution_failed"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindCancelled        ErrorKind = "cancelled"
	KindModelRetry       ErrorKind = "model_retry"
	KindTimeout          ErrorKind = "timeout"
)

// Error is a classified tool failure.
type Error struct {
	Kind    ErrorKind
	Tool    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindNotFound:
		msg = "tool not found: " + e.Message
	case KindInvalidInput:
		msg = "invalid input: " + e.Message
	case KindPermissionDenied:
		msg = "permission denied: " + e.Message
	case KindCancelled:
		msg = "tool call cancelled"
		if e.Message != "" {
			msg += ": " + e.Message
		}
	case KindModelRetry:
		msg = "model retry requested: " + e.Message
	default:
		msg = e.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Recoverable reports whether the failure should be shown to the model as
// an error-flagged result instead of ending the run.
func (e *Error) Recoverable() bool {
	return e.Kind == KindModelRetry || e.Kind == KindTimeout
}

// NotFound reports an unknown tool name.
func NotFound(name string) *Error {
	return &Error{Kind: KindNotFound, Tool: name, Message: name}
}

// InvalidInput reports input the tool cannot accept.
func InvalidInput(name, msg string) *Error {
	return &Error{Kind: KindInvalidInput, Tool: name, Message: msg}
}

// ExecutionFailed wraps an error raised while the tool ran.
func ExecutionFailed(name string, cause error) *Error {
	return &Error{Kind: KindExecutionFailed, Tool: name, Message: "execution failed", Cause: cause}
}

// PermissionDenied reports a call a permission policy refused.
func PermissionDenied(name, reason string) *Error {
	return &Error{Kind: KindPermissionDenied, Tool: name, Message: reason}
}

// Cancelled reports a call abandoned because the run was cancelled.
func Cancelled(name string) *Error {
	return &Error{Kind: KindCancelled, Tool: name}
}

// ModelRetry returns a hint the model should see so it can correct its
// input on the next turn.
func ModelRetry(name, hint string) *Error {
	return &Error{Kind: KindModelRetry, Tool: name, Message: hint}
}

// TimedOut reports a call aborted after exceeding its time budget.
func TimedOut(name, msg string) *Error {
	return &Error{Kind: KindTimeout, Tool: name, Message: msg}
}

// KindOf returns the kind of a tool error anywhere in err's chain, or the
// empty kind when err is not a tool error.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// AsError finds a tool error in err's chain.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
