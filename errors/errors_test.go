package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CopyError
		contains []string
	}{
		{
			name:     "with key and cause",
			err:      NewCopyError(CopyDestinationUnwritable, "uploadPart", "dir/a.bin", fmt.Errorf("boom")),
			contains: []string{"copy.uploadPart", "dir/a.bin", "DestinationUnwritable", "boom"},
		},
		{
			name:     "checksum mismatch carries digests",
			err:      NewChecksumMismatch("putObject", "a.bin", "abc", "def"),
			contains: []string{"ChecksumMismatch", "expected abc", "got def"},
		},
		{
			name:     "rejected digest",
			err:      NewChecksumMismatch("uploadPart", "a.bin", "abc", ""),
			contains: []string{"ChecksumMismatch", "store rejected digest abc"},
		},
		{
			name:     "without key",
			err:      NewCopyError(CopyCancelled, "transfer", "", context.Canceled),
			contains: []string{"copy.transfer (Cancelled)", "context canceled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				assert.Contains(t, msg, want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil", err: nil, want: ""},
		{name: "unauthorized", err: NewProvisionError(ProvisionUnauthorized, "s3://b", fmt.Errorf("denied")), want: CodeUnauthorized},
		{name: "unreachable", err: NewProvisionError(ProvisionUnreachable, "", fmt.Errorf("dial")), want: CodeUnavailable},
		{name: "malformed", err: NewProvisionError(ProvisionMalformed, "", fmt.Errorf("shape")), want: CodeInvalidInput},
		{name: "wrapped copy error", err: fmt.Errorf("outer: %w", NewCopyError(CopySourceUnreadable, "getObject", "k", nil)), want: CodeSourceUnreadable},
		{name: "cleanup", err: NewCleanupError("release", "grant-1", fmt.Errorf("x")), want: CodeCleanupFailed},
		{name: "exhausted", err: &RetryExhaustedError{Op: "putObject", Attempts: 3, Err: fmt.Errorf("503")}, want: CodeRetryExhausted},
		{name: "not found sentinel", err: fmt.Errorf("list: %w", ErrObjectNotFound), want: CodeNotFound},
		{name: "checksum sentinel", err: fmt.Errorf("put: %w", ErrChecksumMismatch), want: CodeChecksumMismatch},
		{name: "plain", err: fmt.Errorf("plain"), want: CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	cause := fmt.Errorf("503 slow down")
	exhausted := &RetryExhaustedError{Op: "uploadPart", Attempts: 4, Err: cause}
	copyErr := NewCopyError(CopyRetryExhausted, "uploadPart", "k", exhausted)

	assert.True(t, IsRetryExhausted(copyErr))
	assert.ErrorIs(t, copyErr, cause, "last cause must stay reachable")
	assert.False(t, IsCancelled(copyErr))

	assert.True(t, IsCancelled(fmt.Errorf("wrap: %w", NewCopyError(CopyCancelled, "transfer", "", context.Canceled))))
	assert.True(t, IsUnauthorized(NewProvisionError(ProvisionUnauthorized, "", fmt.Errorf("denied"))))
	assert.False(t, IsUnauthorized(NewProvisionError(ProvisionUnreachable, "", fmt.Errorf("dial"))))
	assert.True(t, IsChecksumMismatch(NewChecksumMismatch("putObject", "k", "a", "b")))
	assert.True(t, IsChecksumMismatch(fmt.Errorf("s3: %w", ErrChecksumMismatch)))
	assert.False(t, IsChecksumMismatch(copyErr))

	var pe *ProvisionError
	require.True(t, As(fmt.Errorf("x: %w", NewProvisionError(ProvisionMalformed, "t", nil)), &pe))
	assert.Equal(t, ProvisionMalformed, pe.Kind)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "Unauthorized", KindOf(fmt.Errorf("wrapped: %w", NewProvisionError(ProvisionUnauthorized, "s3://b/k", New("denied")))))
	assert.Equal(t, "Cancelled", KindOf(NewCopyError(CopyCancelled, "transfer", "k", context.Canceled)))
	assert.Equal(t, "", KindOf(ErrObjectNotFound))
	assert.Equal(t, "", KindOf(nil))
}
