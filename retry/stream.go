package retry

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// ErrCallTimeout marks an attempt that the per-call timeout ended before it
// returned. Classify treats it as retryable.
var ErrCallTimeout = errors.New("retry: call timed out")

// Open runs fn under r and returns the stream it opens. The per-call timeout
// bounds fn until it returns; the stream then reads under ctx alone until it
// is closed.
func Open(ctx context.Context, r *Retrier, op string, fn func(context.Context) (io.ReadCloser, error), attrs ...any) (io.ReadCloser, error) {
	timeout := r.policy.CallTimeout
	return Value(ctx, r.WithoutCallTimeout(), op, func(ctx context.Context) (io.ReadCloser, error) {
		return openWithin(ctx, timeout, fn)
	}, attrs...)
}

func openWithin(ctx context.Context, timeout time.Duration, fn func(context.Context) (io.ReadCloser, error)) (io.ReadCloser, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	openCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(timeout, func() { cancel(ErrCallTimeout) })

	rc, err := fn(openCtx)
	if !timer.Stop() && ctx.Err() == nil {
		if rc != nil {
			_ = rc.Close()
		}
		cancel(nil)
		if err == nil {
			err = context.Cause(openCtx)
		}
		if errors.Is(err, ErrCallTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %s: %w", ErrCallTimeout, timeout, err)
	}
	if err != nil {
		cancel(nil)
		return nil, err
	}
	return &stream{ReadCloser: rc, cancel: cancel}, nil
}

// stream releases the open context when the body is closed.
type stream struct {
	io.ReadCloser
	cancel context.CancelCauseFunc
}

func (s *stream) Close() error {
	err := s.ReadCloser.Close()
	s.cancel(nil)
	return err
}
