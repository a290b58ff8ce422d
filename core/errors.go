package core

import (
	"errors"
	"fmt"
)

// ErrorCode classifies authority errors. The codes mirror the error
// taxonomy of the authority surface: configuration errors, permission
// errors, and protocol errors. Timeouts and liveness conditions are not
// errors and have no code.
type ErrorCode int

const (
	CodeInternal ErrorCode = iota

	// CodeActionUnknown: the action id is not registered
	CodeActionUnknown

	// CodeIdentityUnknown: the subject cannot be resolved to an identity
	CodeIdentityUnknown

	// CodePermissionDenied: cross-identity probing, foreign-session
	// revocation, or a non-owning unregister
	CodePermissionDenied

	// CodeNotFound: no such grant, agent, or session
	CodeNotFound

	// CodeWrongIdentity: an agent response asserted an identity outside
	// the pre-approved candidate set
	CodeWrongIdentity

	// CodeConflict: an agent is already registered for the session
	CodeConflict

	// CodeCancelled: the operation was cancelled before completion
	CodeCancelled
)

// String returns the string representation of ErrorCode
func (c ErrorCode) String() string {
	switch c {
	case CodeActionUnknown:
		return "action-unknown"
	case CodeIdentityUnknown:
		return "identity-unknown"
	case CodePermissionDenied:
		return "permission-denied"
	case CodeNotFound:
		return "not-found"
	case CodeWrongIdentity:
		return "wrong-identity"
	case CodeConflict:
		return "conflict"
	case CodeCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// CodedError is an error that carries an authority error code. This allows
// embeddings to map failures to their transport's error namespace without
// string matching.
type CodedError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *CodedError) Unwrap() error {
	return e.Err
}

// ErrActionUnknownf creates an action-unknown error.
func ErrActionUnknownf(format string, args ...any) *CodedError {
	return &CodedError{Code: CodeActionUnknown, Message: fmt.Sprintf(format, args...)}
}

// ErrIdentityUnknownf creates an identity-resolution error.
func ErrIdentityUnknownf(format string, args ...any) *CodedError {
	return &CodedError{Code: CodeIdentityUnknown, Message: fmt.Sprintf(format, args...)}
}

// ErrPermissionDeniedf creates a permission-denied error.
func ErrPermissionDeniedf(format string, args ...any) *CodedError {
	return &CodedError{Code: CodePermissionDenied, Message: fmt.Sprintf(format, args...)}
}

// ErrNotFoundf creates a not-found error.
func ErrNotFoundf(format string, args ...any) *CodedError {
	return &CodedError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// ErrWrongIdentityf creates a wrong-identity error.
func ErrWrongIdentityf(format string, args ...any) *CodedError {
	return &CodedError{Code: CodeWrongIdentity, Message: fmt.Sprintf(format, args...)}
}

// ErrConflictf creates a conflict error.
func ErrConflictf(format string, args ...any) *CodedError {
	return &CodedError{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// WrapWithCode wraps an existing error with an authority error code.
func WrapWithCode(code ErrorCode, err error) *CodedError {
	return &CodedError{Code: code, Message: err.Error(), Err: err}
}

// GetErrorCode extracts the authority error code from an error chain.
// Errors without a code classify as internal.
func GetErrorCode(err error) ErrorCode {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}
