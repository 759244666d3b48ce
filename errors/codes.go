package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: storage backend unavailable, connection pool exhausted.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: unknown task, missing role, stale state transition.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	// Examples: claim polling rate limit exceeded.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	// Examples: corrupted task record, invariant violations.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for the task pipeline.
const (
	// Permanent errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"     // Task or annotation does not exist
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"     // Caller lacks the role or is not the claimant
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"  // Caller identity could not be resolved
	ErrCodeInvalidState ErrorCode = "INVALID_STATE" // Task status does not permit the transition
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Malformed or invalid request
	ErrCodeConflict     ErrorCode = "CONFLICT"      // Conflicting concurrent operation

	// Transient errors
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Storage or bus temporarily unavailable

	// Resource errors
	ErrCodeRateLimit ErrorCode = "RATE_LIMITED" // Claim polling rate limit exceeded

	// Internal errors
	ErrCodeInternal   ErrorCode = "INTERNAL"   // Unexpected internal error
	ErrCodeCorruption ErrorCode = "CORRUPTION" // Stored record failed to decode
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeNotFound, ErrCodeForbidden, ErrCodeUnauthorized,
		ErrCodeInvalidState, ErrCodeInvalidInput, ErrCodeConflict:
		return CategoryPermanent
	case ErrCodeUnavailable:
		return CategoryTransient
	case ErrCodeRateLimit:
		return CategoryResource
	case ErrCodeInternal, ErrCodeCorruption:
		return CategoryInternal
	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// HTTPStatus returns the HTTP status code used when surfacing this error
// over the REST API.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeNotFound:
		return 404
	case ErrCodeForbidden:
		return 403
	case ErrCodeUnauthorized:
		return 401
	case ErrCodeInvalidState, ErrCodeConflict:
		return 409
	case ErrCodeInvalidInput:
		return 400
	case ErrCodeRateLimit:
		return 429
	case ErrCodeUnavailable:
		return 503
	default:
		return 500
	}
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeNotFound:     "resource not found",
	ErrCodeForbidden:    "access denied",
	ErrCodeUnauthorized: "authentication required",
	ErrCodeInvalidState: "task status does not permit this transition",
	ErrCodeInvalidInput: "invalid input provided",
	ErrCodeConflict:     "conflicting operation",
	ErrCodeUnavailable:  "service temporarily unavailable",
	ErrCodeRateLimit:    "rate limit exceeded",
	ErrCodeInternal:     "internal error",
	ErrCodeCorruption:   "stored record is corrupted",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
