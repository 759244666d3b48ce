// Package errors provides a structured error taxonomy for the annotation
// task pipeline. It defines the error codes surfaced by the queue service
// and REST API, grouped into categories that tell callers whether a retry
// can help.
//
// # Error Categories
//
//   - Transient: Temporary failures where retry may succeed (storage unavailable, etc.)
//   - Permanent: Failures where retry will not help (not found, forbidden, stale state)
//   - Resource: Resource exhaustion issues (claim polling rate limits)
//   - Internal: Unexpected errors indicating bugs or corrupted records
//
// # Error Codes
//
// The pipeline's failure taxonomy:
//
//   - NOT_FOUND: Referenced task or annotation does not exist
//   - FORBIDDEN: Caller lacks the role, or is not the current claimant
//   - UNAUTHORIZED: Caller identity could not be resolved
//   - INVALID_STATE: Task status does not permit the requested transition
//   - INVALID_INPUT: Malformed request
//   - RATE_LIMITED: Claim polling rate limit exceeded
//
// INVALID_STATE is the primary guard against double submission and double
// approval: the second of two racing calls fails with it rather than
// corrupting task state.
//
// # Usage
//
// Create a new error:
//
//	err := errors.InvalidState(taskID, "task is not claimed")
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "loading task")
//
// Map an error to an HTTP status:
//
//	status := errors.HTTPStatus(err)
package errors
