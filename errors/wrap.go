package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already a PipelineError, it wraps it with the new message while
// keeping the original code, category, and metadata.
// Otherwise, it creates a new Internal error wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	// If it's already a structured error, preserve its properties
	var perr *Error
	if errors.As(err, &perr) {
		wrapped := &Error{
			code:      perr.code,
			category:  perr.category,
			message:   message,
			cause:     err,
			metadata:  perr.Metadata(),
			retryable: perr.retryable,
			actorID:   perr.actorID,
			taskID:    perr.taskID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	// Context errors map to transient/permanent codes
	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeUnavailable, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeInvalidInput, message, append(opts, WithCause(err))...)
	}

	// Default to internal error for unknown errors
	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsPipelineError attempts to extract a PipelineError from an error chain.
// Returns nil if no PipelineError is found.
func AsPipelineError(err error) PipelineError {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	// Default to not retryable for unstructured errors
	return false
}

// Code extracts the error code from an error, if available.
// Returns empty string if err is not a PipelineError.
func Code(err error) ErrorCode {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.code
	}
	return ""
}

// Category extracts the error category from an error, if available.
// Returns empty string if err is not a PipelineError.
func Category(err error) ErrorCategory {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.category
	}
	return ""
}

// HTTPStatus returns the HTTP status for an error.
// Unstructured errors map to 500.
func HTTPStatus(err error) int {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.code.HTTPStatus()
	}
	return 500
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// Join combines multiple errors into a single error.
// Uses errors.Join from the standard library.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
