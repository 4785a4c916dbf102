package retry

import (
	"context"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// Decision is the outcome of classifying a failure.
type Decision int

const (
	// Terminal failures are returned to the caller immediately.
	Terminal Decision = iota

	// Retryable failures are attempted again after a backoff delay.
	Retryable
)

// String returns the string representation of the Decision.
func (d Decision) String() string {
	if d == Retryable {
		return "retryable"
	}
	return "terminal"
}

// Classifier decides whether a failure should be retried.
type Classifier func(error) Decision

var retryableCodes = map[string]struct{}{
	"SlowDown":                               {},
	"Throttling":                             {},
	"ThrottlingException":                    {},
	"ThrottledException":                     {},
	"TooManyRequests":                        {},
	"TooManyRequestsException":               {},
	"RequestLimitExceeded":                   {},
	"RequestThrottled":                       {},
	"RequestThrottledException":              {},
	"ProvisionedThroughputExceededException": {},
	"RequestTimeout":                         {},
	"RequestTimeoutException":                {},
	"ServiceUnavailable":                     {},
	"InternalError":                          {},
	"InternalFailure":                        {},
	"IDPCommunicationError":                  {},
	"XMinioServerNotInitialized":             {},
}

var terminalCodes = map[string]struct{}{
	"AccessDenied":                 {},
	"AccessDeniedException":        {},
	"UnauthorizedOperation":        {},
	"InvalidAccessKeyId":           {},
	"SignatureDoesNotMatch":        {},
	"ExpiredToken":                 {},
	"InvalidClientTokenId":         {},
	"NoSuchBucket":                 {},
	"NoSuchKey":                    {},
	"NoSuchUpload":                 {},
	"NotFound":                     {},
	"InvalidParameterException":    {},
	"ValidationException":          {},
	"MalformedPolicyDocument":      {},
	"InvalidRequest":               {},
	"InvalidArgument":              {},
	"InvalidPart":                  {},
	"InvalidPartOrder":             {},
	"EntityTooLarge":               {},
	"BadDigest":                    {},
	"InvalidDigest":                {},
	"XAmzContentChecksumMismatch":  {},
	"XAmzContentSHA256Mismatch":    {},
	"PreconditionFailed":           {},
	"MissingContentLength":         {},
	"RegionDisabledException":      {},
	"PackedPolicyTooLarge":         {},
	"ResourceNotFoundException":    {},
	"DecryptionFailure":            {},
	"InvalidRequestException":      {},
	"InvalidSecretValueException":  {},
	"EncryptionFailure":            {},
	"AuthorizationHeaderMalformed": {},
}

// Classify is the default Classifier.
//
// Throttling, server-side faults (HTTP 429 and 5xx), network timeouts and
// dropped connections are retryable, as are unreachable identity backends and
// grants that were issued too close to their expiry. Everything else,
// including caller cancellation and checksum mismatches, is terminal.
func Classify(err error) Decision {
	if err == nil {
		return Terminal
	}
	if errors.Is(err, ErrCallTimeout) {
		return Retryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Terminal
	}
	if errors.Is(err, errors.ErrGrantExpiresTooSoon) {
		return Retryable
	}

	var pe *errors.ProvisionError
	if errors.As(err, &pe) {
		if pe.Kind == errors.ProvisionUnreachable {
			return Retryable
		}
		return Terminal
	}
	if errors.IsChecksumMismatch(err) {
		return Terminal
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if _, ok := terminalCodes[code]; ok {
			return Terminal
		}
		if _, ok := retryableCodes[code]; ok {
			return Retryable
		}
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.HTTPStatusCode())
	}

	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		if _, ok := terminalCodes[minioErr.Code]; ok {
			return Terminal
		}
		if _, ok := retryableCodes[minioErr.Code]; ok {
			return Retryable
		}
		return classifyStatus(minioErr.StatusCode)
	}

	if isNetworkError(err) {
		return Retryable
	}
	return Terminal
}

func classifyStatus(status int) Decision {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return Retryable
	case status >= http.StatusInternalServerError && status != http.StatusNotImplemented:
		return Retryable
	default:
		return Terminal
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsTemporary {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
