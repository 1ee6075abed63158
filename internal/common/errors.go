package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
)

// Pipeline input errors. Terminal for the request, never retried.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("corrupt document")
	ErrEmptyDocument     = errors.New("document has no extractable text")
	ErrDocumentTooLarge  = errors.New("document exceeds the size limit")
	ErrIncompleteRecord  = errors.New("incomplete syllabus record")
)

// Capability errors.
var (
	ErrExtractionFailed      = errors.New("extraction failed")
	ErrCapabilityUnavailable = errors.New("extraction capability unavailable")
)

// Authorization and consistency errors.
var (
	ErrAuthorizationExpired  = errors.New("calendar authorization expired")
	ErrAuthorizationRequired = errors.New("calendar authorization required")
	ErrInvalidTransition     = errors.New("invalid connection state transition")
	ErrConflictingUpdate     = errors.New("conflicting update")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode returns the AppError code carried by err, or "" when there is none.
func ErrorCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

// ToStatus maps a domain error onto a gRPC status error. Errors that already
// carry a status are returned unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	msg := err.Error()
	switch {
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrCorruptDocument),
		errors.Is(err, ErrEmptyDocument),
		errors.Is(err, ErrDocumentTooLarge),
		errors.Is(err, ErrIncompleteRecord),
		errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, msg)
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, msg)
	case errors.Is(err, ErrConflictingUpdate):
		return status.Error(codes.Aborted, msg)
	case errors.Is(err, ErrAuthorizationExpired), errors.Is(err, ErrAuthorizationRequired):
		return status.Error(codes.Unauthenticated, msg)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrExtractionFailed):
		return status.Error(codes.FailedPrecondition, msg)
	case errors.Is(err, ErrCapabilityUnavailable):
		return status.Error(codes.Unavailable, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, msg)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, msg)
	}
	return status.Error(codes.Internal, msg)
}
