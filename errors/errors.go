package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
// These can be used with errors.Is() for error checking.
var (
	// ErrObjectNotFound indicates the source named no object, or a prefix matched nothing.
	ErrObjectNotFound = errors.New("transfer: object not found")

	// ErrInvalidAddress indicates a storage address failed validation.
	ErrInvalidAddress = errors.New("transfer: invalid storage address")

	// ErrUnsupportedProvider indicates no provisioner or endpoint is registered for a provider type.
	ErrUnsupportedProvider = errors.New("transfer: unsupported provider")

	// ErrGrantExpired indicates a grant was presented after its expiry.
	ErrGrantExpired = errors.New("transfer: access grant expired")

	// ErrGrantExpiresTooSoon indicates a freshly issued grant had less than the
	// minimum validity margin remaining.
	ErrGrantExpiresTooSoon = errors.New("transfer: access grant expires too soon")

	// ErrInvalidConfig indicates a configuration value is out of range or unparseable.
	ErrInvalidConfig = errors.New("transfer: invalid configuration")

	// ErrInvalidTransition indicates the state machine was asked to move along an edge it does not have.
	ErrInvalidTransition = errors.New("transfer: invalid state transition")

	// ErrChecksumMismatch indicates the store rejected a write because the
	// digest it computed differs from the one sent with the request.
	ErrChecksumMismatch = errors.New("transfer: checksum mismatch")

	// ErrPartOrder indicates multipart completion was attempted with parts out of sequence.
	ErrPartOrder = errors.New("transfer: parts out of order")
)

// ProvisionKind classifies a provisioning failure.
type ProvisionKind string

const (
	// ProvisionUnauthorized is terminal: the identity backend refused the request.
	ProvisionUnauthorized ProvisionKind = "Unauthorized"

	// ProvisionUnreachable is retryable: the identity backend could not be reached.
	ProvisionUnreachable ProvisionKind = "Unreachable"

	// ProvisionMalformed is terminal: the response had an unexpected shape.
	ProvisionMalformed ProvisionKind = "Malformed"
)

// ProvisionError reports a failure to obtain an access grant.
type ProvisionError struct {
	// Kind is the failure class
	Kind ProvisionKind

	// Target describes the storage location access was requested for
	Target string

	// Err is the underlying cause
	Err error
}

// Error implements the error interface.
func (e *ProvisionError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("provision %s (%s): %v", e.Target, e.Kind, e.Err)
	}
	return fmt.Sprintf("provision (%s): %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// Code maps the provisioning kind to an ErrorCode.
func (e *ProvisionError) Code() ErrorCode {
	switch e.Kind {
	case ProvisionUnauthorized:
		return CodeUnauthorized
	case ProvisionUnreachable:
		return CodeUnavailable
	case ProvisionMalformed:
		return CodeInvalidInput
	default:
		return CodeUnknown
	}
}

// NewProvisionError creates a ProvisionError for target.
func NewProvisionError(kind ProvisionKind, target string, err error) *ProvisionError {
	return &ProvisionError{Kind: kind, Target: target, Err: err}
}

// CopyKind classifies a data movement failure.
type CopyKind string

const (
	// CopySourceUnreadable means the source could not be listed, inspected or read.
	CopySourceUnreadable CopyKind = "SourceUnreadable"

	// CopyDestinationUnwritable means the destination rejected a write.
	CopyDestinationUnwritable CopyKind = "DestinationUnwritable"

	// CopyChecksumMismatch means the destination digest differs from the locally computed one.
	CopyChecksumMismatch CopyKind = "ChecksumMismatch"

	// CopyCancelled means the transfer was cancelled or hit its session timeout.
	CopyCancelled CopyKind = "Cancelled"

	// CopyRetryExhausted means a retryable failure persisted through every attempt.
	CopyRetryExhausted CopyKind = "RetryExhausted"
)

// CopyError reports a failure to move bytes between two locations.
type CopyError struct {
	// Kind is the failure class
	Kind CopyKind

	// Op is the operation that failed (e.g., "uploadPart", "copyObject")
	Op string

	// Key is the object key involved, if any
	Key string

	// Expected and Actual carry digests for checksum mismatches
	Expected string
	Actual   string

	// Err is the underlying cause
	Err error
}

// Error implements the error interface.
func (e *CopyError) Error() string {
	msg := fmt.Sprintf("copy.%s", e.Op)
	if e.Key != "" {
		msg += " " + e.Key
	}
	msg += fmt.Sprintf(" (%s)", e.Kind)
	if e.Kind == CopyChecksumMismatch {
		switch {
		case e.Actual != "":
			msg += fmt.Sprintf(": expected %s, got %s", e.Expected, e.Actual)
		case e.Expected != "":
			msg += fmt.Sprintf(": store rejected digest %s", e.Expected)
		}
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chaining support.
func (e *CopyError) Unwrap() error {
	return e.Err
}

// Code maps the copy kind to an ErrorCode.
func (e *CopyError) Code() ErrorCode {
	switch e.Kind {
	case CopySourceUnreadable:
		return CodeSourceUnreadable
	case CopyDestinationUnwritable:
		return CodeDestinationUnwritable
	case CopyChecksumMismatch:
		return CodeChecksumMismatch
	case CopyCancelled:
		return CodeCancelled
	case CopyRetryExhausted:
		return CodeRetryExhausted
	default:
		return CodeUnknown
	}
}

// NewCopyError creates a CopyError.
func NewCopyError(kind CopyKind, op, key string, err error) *CopyError {
	return &CopyError{Kind: kind, Op: op, Key: key, Err: err}
}

// NewChecksumMismatch creates a terminal CopyError carrying both digests.
func NewChecksumMismatch(op, key, expected, actual string) *CopyError {
	return &CopyError{
		Kind:     CopyChecksumMismatch,
		Op:       op,
		Key:      key,
		Expected: expected,
		Actual:   actual,
	}
}

// CleanupError reports a failed abort or release. It never changes a
// transfer's outcome and is surfaced as a secondary diagnostic.
type CleanupError struct {
	// Op is the cleanup operation (e.g., "abortMultipartUpload", "release")
	Op string

	// Resource identifies what was being cleaned up
	Resource string

	// Err is the underlying cause
	Err error
}

// Error implements the error interface.
func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup.%s %s: %v", e.Op, e.Resource, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *CleanupError) Unwrap() error {
	return e.Err
}

// Code returns CodeCleanupFailed.
func (e *CleanupError) Code() ErrorCode {
	return CodeCleanupFailed
}

// NewCleanupError creates a CleanupError.
func NewCleanupError(op, resource string, err error) *CleanupError {
	return &CleanupError{Op: op, Resource: resource, Err: err}
}

// RetryExhaustedError is returned when every permitted attempt of an
// operation failed with a retryable error. Err is the last cause.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: retry budget exhausted after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

// Unwrap returns the last retryable cause.
func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// Code returns CodeRetryExhausted.
func (e *RetryExhaustedError) Code() ErrorCode {
	return CodeRetryExhausted
}

// Coder is implemented by every typed error in this package.
type Coder interface {
	Code() ErrorCode
}

// CodeOf returns the code of the first typed error in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	if errors.Is(err, ErrObjectNotFound) {
		return CodeNotFound
	}
	if errors.Is(err, ErrChecksumMismatch) {
		return CodeChecksumMismatch
	}
	if errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrUnsupportedProvider) {
		return CodeInvalidInput
	}
	if errors.Is(err, ErrInvalidConfig) {
		return CodeInvalidConfig
	}
	return CodeUnknown
}

// KindOf returns the Kind of the first ProvisionError or CopyError in err's
// chain, or "" when there is none.
func KindOf(err error) string {
	var pe *ProvisionError
	var ce *CopyError
	switch {
	case errors.As(err, &ce):
		return string(ce.Kind)
	case errors.As(err, &pe):
		return string(pe.Kind)
	}
	return ""
}

// IsCancelled reports whether err carries a Cancelled copy failure.
func IsCancelled(err error) bool {
	var ce *CopyError
	return errors.As(err, &ce) && ce.Kind == CopyCancelled
}

// IsUnauthorized reports whether err carries an Unauthorized provisioning failure.
func IsUnauthorized(err error) bool {
	var pe *ProvisionError
	return errors.As(err, &pe) && pe.Kind == ProvisionUnauthorized
}

// IsRetryExhausted reports whether err wraps a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

// IsChecksumMismatch reports whether err carries a ChecksumMismatch copy
// failure or a store's digest rejection.
func IsChecksumMismatch(err error) bool {
	var ce *CopyError
	if errors.As(err, &ce) && ce.Kind == CopyChecksumMismatch {
		return true
	}
	return errors.Is(err, ErrChecksumMismatch)
}

// Is, As and Join re-export the standard library helpers so callers importing
// this package under its own name do not need a second import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
	New  = errors.New
)
