// Package errors provides the error taxonomy for the transfer engine.
// It extends Go's standard error handling with structured error codes,
// typed provisioning, copy and cleanup failures, and retry exhaustion.
package errors

// ErrorCode represents a specific error condition in the transfer engine.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Resource errors.

	// CodeNotFound indicates a requested object or bucket does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// Permission errors.

	// CodeUnauthorized indicates the identity backend refused to issue or honour credentials.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Validation errors.

	// CodeInvalidInput indicates the provided address or response is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// Infrastructure errors.

	// CodeUnavailable indicates a remote service could not be reached.
	CodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// CodeRetryExhausted indicates every permitted attempt failed with a retryable error.
	CodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"

	// Transfer errors.

	// CodeSourceUnreadable indicates the source could not be listed, inspected or read.
	CodeSourceUnreadable ErrorCode = "SOURCE_UNREADABLE"

	// CodeDestinationUnwritable indicates the destination rejected a write.
	CodeDestinationUnwritable ErrorCode = "DESTINATION_UNWRITABLE"

	// CodeChecksumMismatch indicates content arrived with a different digest than was sent.
	CodeChecksumMismatch ErrorCode = "CHECKSUM_MISMATCH"

	// CodeCancelled indicates the transfer was cancelled or timed out.
	CodeCancelled ErrorCode = "CANCELLED"

	// CodeCleanupFailed indicates an abort or release call failed.
	CodeCleanupFailed ErrorCode = "CLEANUP_FAILED"

	// System errors.

	// CodeInternal indicates an internal invariant was violated.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)
