package retry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/clock"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
}

func httpError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      fmt.Errorf("status %d", status),
		},
	}
}

func TestRetrier_Do(t *testing.T) {
	tests := []struct {
		name         string
		attempts     int
		failures     []error
		wantCalls    int
		wantErr      bool
		wantExhausts bool
	}{
		{
			name:      "succeeds first time",
			attempts:  3,
			wantCalls: 1,
		},
		{
			name:      "recovers after transient failures",
			attempts:  3,
			failures:  []error{httpError(503), syscall.ECONNRESET},
			wantCalls: 3,
		},
		{
			name:      "terminal failure is not retried",
			attempts:  3,
			failures:  []error{&smithy.GenericAPIError{Code: "AccessDenied"}},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:         "exhausts attempts",
			attempts:     2,
			failures:     []error{httpError(500), httpError(500), httpError(500)},
			wantCalls:    2,
			wantErr:      true,
			wantExhausts: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(fastPolicy(tt.attempts))
			calls := 0
			err := r.Do(context.Background(), "test", func(context.Context) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantExhausts, errors.IsRetryExhausted(err))
		})
	}
}

func TestRetrier_ExhaustedPreservesCause(t *testing.T) {
	r := New(fastPolicy(2))
	cause := &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce your request rate"}

	err := r.Do(context.Background(), "uploadPart", func(context.Context) error { return cause })

	var exhausted *errors.RetryExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "uploadPart", exhausted.Op)
	assert.Equal(t, 2, exhausted.Attempts)

	var apiErr smithy.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "SlowDown", apiErr.ErrorCode())
	assert.Equal(t, errors.CodeRetryExhausted, errors.CodeOf(err))
}

func TestRetrier_LogsEachRetry(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var observed atomic.Int32
	r := New(fastPolicy(4),
		WithLogger(logger),
		WithObserver(func(op string, attempt int, err error) {
			observed.Add(1)
			assert.Equal(t, "uploadPart", op)
		}),
	)

	calls := 0
	err := r.Do(context.Background(), "uploadPart", func(context.Context) error {
		calls++
		if calls == 1 {
			return httpError(503)
		}
		return nil
	}, "part", 3)

	require.NoError(t, err)
	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "retrying transient failure"))
	assert.Contains(t, out, "operation=uploadPart")
	assert.Contains(t, out, "attempt=1")
	assert.Contains(t, out, "max_attempts=4")
	assert.Contains(t, out, "part=3")
	assert.Equal(t, int32(1), observed.Load())
}

func TestRetrier_CallerCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(fastPolicy(5))

	calls := 0
	err := r.Do(ctx, "test", func(context.Context) error {
		calls++
		cancel()
		return httpError(503)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, errors.IsRetryExhausted(err))
}

func TestRetrier_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New(fastPolicy(3)).Do(ctx, "test", func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRetrier_PerCallTimeoutIsRetryable(t *testing.T) {
	p := fastPolicy(3)
	p.CallTimeout = 10 * time.Millisecond
	r := New(p)

	calls := 0
	err := r.Do(context.Background(), "slow", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetrier_WithoutCallTimeout(t *testing.T) {
	p := fastPolicy(2)
	p.CallTimeout = time.Millisecond
	r := New(p).WithoutCallTimeout()

	assert.Zero(t, r.Policy().CallTimeout)
	assert.Equal(t, 2, r.Policy().MaxAttempts)

	err := r.Do(context.Background(), "open", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		return nil
	})
	require.NoError(t, err)
}

func TestRetrier_WaitsOnClock(t *testing.T) {
	m := clock.NewManual(time.Now())
	r := New(Policy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Second}, WithClock(m))

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- r.Do(context.Background(), "test", func(context.Context) error {
			if calls.Add(1) == 1 {
				return httpError(429)
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return m.Pending() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	m.Advance(time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("retry did not resume after clock advanced")
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestValue(t *testing.T) {
	r := New(fastPolicy(3))
	calls := 0
	v, err := Value(context.Background(), r, "get", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", io.ErrUnexpectedEOF
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Decision
	}{
		{"nil", nil, Terminal},
		{"canceled", context.Canceled, Terminal},
		{"caller deadline", context.DeadlineExceeded, Terminal},
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, Retryable},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, Retryable},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, Terminal},
		{"bad digest", &smithy.GenericAPIError{Code: "BadDigest"}, Terminal},
		{"http 503", httpError(503), Retryable},
		{"http 429", httpError(429), Retryable},
		{"http 404", httpError(404), Terminal},
		{"http 501", httpError(501), Terminal},
		{"minio slow down", minio.ErrorResponse{Code: "SlowDown", StatusCode: 503}, Retryable},
		{"minio no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}, Terminal},
		{"minio 502", minio.ErrorResponse{Code: "BadGateway", StatusCode: 502}, Retryable},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), Retryable},
		{"unexpected eof", io.ErrUnexpectedEOF, Retryable},
		{"provision unreachable", errors.NewProvisionError(errors.ProvisionUnreachable, "s3://b", io.EOF), Retryable},
		{"provision unauthorized", errors.NewProvisionError(errors.ProvisionUnauthorized, "s3://b", io.EOF), Terminal},
		{"grant too short", fmt.Errorf("issue: %w", errors.ErrGrantExpiresTooSoon), Retryable},
		{"checksum mismatch", errors.NewChecksumMismatch("put", "k", "a", "b"), Terminal},
		{"plain", errors.New("boom"), Terminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

// ctxBody reads from data until its context ends.
type ctxBody struct {
	ctx    context.Context
	data   *strings.Reader
	closed bool
}

func (b *ctxBody) Read(p []byte) (int, error) {
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	return b.data.Read(p)
}

func (b *ctxBody) Close() error {
	b.closed = true
	return nil
}

func TestOpen_BoundsOnlyTheOpenCall(t *testing.T) {
	p := fastPolicy(3)
	p.CallTimeout = 20 * time.Millisecond
	var logs bytes.Buffer
	r := New(p, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	var hung *ctxBody
	calls := 0
	rc, err := Open(context.Background(), r, "getObject", func(ctx context.Context) (io.ReadCloser, error) {
		calls++
		if calls == 1 {
			hung = &ctxBody{ctx: ctx, data: strings.NewReader("stale")}
			<-ctx.Done()
			return hung, nil
		}
		return &ctxBody{ctx: ctx, data: strings.NewReader("payload")}, nil
	}, "key", "obj")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, hung.closed, "a stream returned after the timeout is closed")
	assert.Contains(t, logs.String(), "retrying transient failure")
	assert.Contains(t, logs.String(), "key=obj")

	time.Sleep(3 * p.CallTimeout)
	data, err := io.ReadAll(rc)
	require.NoError(t, err, "reading outlives the call timeout")
	assert.Equal(t, "payload", string(data))
	require.NoError(t, rc.Close())
}

func TestOpen_TimeoutExhaustsBudget(t *testing.T) {
	p := fastPolicy(2)
	p.CallTimeout = 5 * time.Millisecond
	r := New(p)

	_, err := Open(context.Background(), r, "getObject", func(ctx context.Context) (io.ReadCloser, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, errors.IsRetryExhausted(err))
	assert.ErrorIs(t, err, ErrCallTimeout)
	assert.Equal(t, Retryable, Classify(fmt.Errorf("wrapped: %w", ErrCallTimeout)))
}

func TestOpen_CallerCancellationIsTerminal(t *testing.T) {
	p := fastPolicy(3)
	p.CallTimeout = time.Second
	r := New(p)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Open(ctx, r, "getObject", func(ctx context.Context) (io.ReadCloser, error) {
		calls++
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrCallTimeout)
	assert.Equal(t, 1, calls)
}
