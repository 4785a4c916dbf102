package engine

import (
	"context"
	"io"
	"log/slog"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// sourceReader streams one object and, when the connection drops mid-stream
// with a retryable error, reopens it at the current offset. Each open is
// bounded by the per-call timeout; reading the body is not.
type sourceReader struct {
	ctx     context.Context
	src     store.Reader
	key     string
	retrier *retry.Retrier
	logger  *slog.Logger

	body    io.ReadCloser
	offset  int64
	reopens int
}

func (e *Engine) openSource(ctx context.Context, src store.Reader, key string) *sourceReader {
	return &sourceReader{
		ctx:     ctx,
		src:     src,
		key:     key,
		retrier: e.retrier,
		logger:  e.logger,
	}
}

func (r *sourceReader) Read(p []byte) (int, error) {
	if r.body == nil {
		body, err := retry.Open(r.ctx, r.retrier, "getObject", func(ctx context.Context) (io.ReadCloser, error) {
			return r.src.Open(ctx, r.key, r.offset)
		}, "key", r.key, "offset", r.offset)
		if err != nil {
			return 0, err
		}
		r.body = body
	}

	n, err := r.body.Read(p)
	r.offset += int64(n)
	if err == nil || err == io.EOF {
		return n, err
	}
	if r.ctx.Err() != nil || retry.Classify(err) != retry.Retryable || r.reopens+1 >= r.retrier.Policy().MaxAttempts {
		return n, err
	}

	r.reopens++
	r.logger.Warn("source stream interrupted, reopening",
		"key", r.key,
		"offset", r.offset,
		"attempt", r.reopens,
		"error", err,
	)
	_ = r.body.Close()
	r.body = nil
	return n, nil
}

func (r *sourceReader) Close() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}
