package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

func responseError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      fmt.Errorf("status %d", status),
		},
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "typed no such key", err: &s3types.NoSuchKey{}, want: ErrObjectNotFound},
		{name: "typed not found", err: &s3types.NotFound{}, want: ErrObjectNotFound},
		{name: "typed no such bucket", err: &s3types.NoSuchBucket{}, want: ErrBucketNotFound},
		{name: "typed no such upload", err: &s3types.NoSuchUpload{}, want: ErrNoSuchUpload},
		{name: "access denied code", err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: ErrAccessDenied},
		{name: "bad digest code", err: &smithy.GenericAPIError{Code: "BadDigest"}, want: ErrChecksumMismatch},
		{name: "checksum header mismatch", err: &smithy.GenericAPIError{Code: "XAmzContentChecksumMismatch"}, want: transfererrors.ErrChecksumMismatch},
		{name: "sha256 header mismatch", err: &smithy.GenericAPIError{Code: "XAmzContentSHA256Mismatch"}, want: transfererrors.ErrChecksumMismatch},
		{name: "bare 404", err: responseError(http.StatusNotFound), want: ErrObjectNotFound},
		{name: "bare 403", err: responseError(http.StatusForbidden), want: ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Translate(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestTranslate_Passthrough(t *testing.T) {
	assert.NoError(t, Translate(nil))

	plain := errors.New("boom")
	assert.Same(t, plain, Translate(plain))

	unavailable := responseError(http.StatusServiceUnavailable)
	assert.Equal(t, unavailable, Translate(unavailable))
}

func TestError_Format(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "object", err: NewObjectError("putObject", "b", "k", cause), want: "s3.putObject b/k: boom"},
		{name: "bucket", err: NewBucketError("headBucket", "b", cause), want: "s3.headBucket bucket b: boom"},
		{name: "bare", err: NewError("listBuckets", cause), want: "s3.listBuckets: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, cause)
		})
	}
}

func TestPredicates(t *testing.T) {
	err := NewObjectError("headObject", "b", "k", &s3types.NotFound{})
	assert.True(t, IsObjectNotFound(err))
	assert.False(t, IsBucketNotFound(err))
	assert.False(t, IsAccessDenied(err))
}
