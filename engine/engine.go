// Package engine moves object bytes between two store endpoints.
//
// An Engine executes TransferPlans. Server-side copies never touch local
// memory; streaming copies pipe the object through a bounded queue of
// pooled, part-sized buffers, so memory use is about (BufferParts+2) times
// the part size whatever the object size. Every remote call goes through
// the retry layer, every multipart upload the engine creates is either
// completed or aborted, and every written byte is checksummed.
package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

const (
	// DefaultBufferParts is the number of parts read ahead of the uploader.
	DefaultBufferParts = 4

	// DefaultCopyPartSize is the range size of server-side part copies.
	DefaultCopyPartSize int64 = 64 * 1024 * 1024

	// DefaultMaxSingleCopySize is the largest object copied with one
	// CopyObject call.
	DefaultMaxSingleCopySize int64 = 5 * 1024 * 1024 * 1024

	// DefaultAbortTimeout bounds aborting a failed multipart upload.
	DefaultAbortTimeout = 30 * time.Second
)

// Options are the engine tunables. Zero fields take their defaults.
type Options struct {
	BufferParts       int
	CopyPartSize      int64
	MaxSingleCopySize int64
	AbortTimeout      time.Duration
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		BufferParts:       DefaultBufferParts,
		CopyPartSize:      DefaultCopyPartSize,
		MaxSingleCopySize: DefaultMaxSingleCopySize,
		AbortTimeout:      DefaultAbortTimeout,
	}
}

// Engine executes transfer plans. It is safe for concurrent use by many
// sessions.
type Engine struct {
	opts    Options
	planner *planner.Planner
	retrier *retry.Retrier
	chunks  *pool.ChunkPool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithOptions sets the engine tunables.
func WithOptions(o Options) Option {
	return func(e *Engine) {
		def := DefaultOptions()
		if o.BufferParts <= 0 {
			o.BufferParts = def.BufferParts
		}
		if o.CopyPartSize <= 0 {
			o.CopyPartSize = def.CopyPartSize
		}
		if o.MaxSingleCopySize <= 0 {
			o.MaxSingleCopySize = def.MaxSingleCopySize
		}
		if o.AbortTimeout <= 0 {
			o.AbortTimeout = def.AbortTimeout
		}
		e.opts = o
	}
}

// WithPlanner sets the planner used for multi-object transfers and the
// single-shot threshold.
func WithPlanner(p *planner.Planner) Option {
	return func(e *Engine) {
		if p != nil {
			e.planner = p
		}
	}
}

// WithRetrier sets the retrier every remote call goes through.
func WithRetrier(r *retry.Retrier) Option {
	return func(e *Engine) {
		if r != nil {
			e.retrier = r
		}
	}
}

// WithChunkPool shares a buffer pool between engines.
func WithChunkPool(p *pool.ChunkPool) Option {
	return func(e *Engine) {
		if p != nil {
			e.chunks = p
		}
	}
}

// WithMetrics records bytes, parts and objects.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger configures the logger for the engine.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		opts:    DefaultOptions(),
		planner: planner.New(planner.DefaultOptions()),
		retrier: retry.New(retry.DefaultPolicy()),
		chunks:  pool.NewChunkPool(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// Planner returns the engine's planner.
func (e *Engine) Planner() *planner.Planner {
	return e.planner
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// Execute moves the object plan.Source.Key to plan.Destination.Key.
//
// The returned result is never nil. On failure its Err is the returned
// error, a *errors.CopyError, and CleanupErrors lists aborts that failed.
func (e *Engine) Execute(
	ctx context.Context,
	plan domain.TransferPlan,
	src store.Reader,
	dst store.Writer,
	progress *Progress,
) (*domain.ObjectResult, error) {
	info, err := e.stat(ctx, src, plan.Source.Key)
	if err != nil {
		res := newResult(plan)
		res.Err = err
		e.metrics.ObjectDone(plan.Strategy, err)
		return res, err
	}
	return e.execute(ctx, plan, info, src, dst, progress)
}

func newResult(plan domain.TransferPlan) *domain.ObjectResult {
	return &domain.ObjectResult{
		SourceKey:      plan.Source.Key,
		DestinationKey: plan.Destination.Key,
		Strategy:       plan.Strategy,
	}
}

func (e *Engine) stat(ctx context.Context, src store.Reader, key string) (*store.ObjectInfo, error) {
	info, err := retry.Value(ctx, e.retrier, "headObject", func(ctx context.Context) (*store.ObjectInfo, error) {
		return src.Stat(ctx, key)
	}, "key", key)
	if err != nil {
		return nil, e.copyError(ctx, errors.CopySourceUnreadable, "headObject", key, err)
	}
	if info.Key == "" {
		info.Key = key
	}
	return info, nil
}

func (e *Engine) execute(
	ctx context.Context,
	plan domain.TransferPlan,
	info *store.ObjectInfo,
	src store.Reader,
	dst store.Writer,
	progress *Progress,
) (*domain.ObjectResult, error) {
	res := newResult(plan)
	start := time.Now()

	var err error
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = e.copyError(ctx, errors.CopyCancelled, "execute", plan.Source.Key, ctxErr)
	} else if copier, ok := dst.(store.Copier); ok && plan.Strategy == domain.StrategyServerSideCopy {
		err = e.serverSideCopy(ctx, plan, info, copier, dst, res, progress)
	} else {
		if plan.Strategy == domain.StrategyServerSideCopy {
			e.logger.Debug("destination has no server-side copy, streaming instead", "key", plan.Destination.Key)
			res.Strategy = domain.StrategyStreaming
		}
		err = e.stream(ctx, plan, info, src, dst, res, progress)
	}

	res.Err = err
	e.metrics.ObjectDone(res.Strategy, err)
	if err != nil {
		e.logger.Warn("object transfer failed",
			"source", plan.Source.Key,
			"destination", plan.Destination.Key,
			"strategy", res.Strategy,
			"error", err,
		)
		return res, err
	}
	e.logger.Info("object transferred",
		"source", plan.Source.Key,
		"destination", plan.Destination.Key,
		"strategy", res.Strategy,
		"size", humanize.IBytes(uint64(res.Bytes)),
		"parts", res.Parts,
		"elapsed", time.Since(start),
	)
	return res, nil
}

// copyError classifies err as a CopyError of kind. Cancellation of ctx takes
// precedence, and errors that already carry a CopyError keep theirs.
func (e *Engine) copyError(ctx context.Context, kind errors.CopyKind, op, key string, err error) error {
	if ctx.Err() != nil {
		if errors.IsCancelled(err) {
			return err
		}
		return errors.NewCopyError(errors.CopyCancelled, op, key, context.Cause(ctx))
	}
	var ce *errors.CopyError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, errors.ErrChecksumMismatch) {
		ce := errors.NewChecksumMismatch(op, key, "", "")
		ce.Err = err
		return ce
	}
	if errors.IsRetryExhausted(err) {
		return errors.NewCopyError(errors.CopyRetryExhausted, op, key, err)
	}
	return errors.NewCopyError(kind, op, key, err)
}

// writeError classifies a failed write of data whose local digest is sum. A
// store that rejects the digest yields a ChecksumMismatch carrying sum.
func (e *Engine) writeError(ctx context.Context, op, key, sum string, err error) error {
	if ctx.Err() == nil && errors.Is(err, errors.ErrChecksumMismatch) {
		ce := errors.NewChecksumMismatch(op, key, sum, "")
		ce.Err = err
		return ce
	}
	return e.copyError(ctx, errors.CopyDestinationUnwritable, op, key, err)
}

// createMultipart starts a multipart upload on dst.
func (e *Engine) createMultipart(
	ctx context.Context,
	dst store.Writer,
	key, contentType string,
	alg domain.ChecksumAlgorithm,
) (store.MultipartUpload, error) {
	upload, err := retry.Value(ctx, e.retrier, "createMultipartUpload", func(ctx context.Context) (store.MultipartUpload, error) {
		return dst.CreateMultipart(ctx, key, store.MultipartOptions{ContentType: contentType, Checksum: alg})
	}, "key", key)
	if err != nil {
		return nil, e.copyError(ctx, errors.CopyDestinationUnwritable, "createMultipartUpload", key, err)
	}
	e.logger.Debug("created multipart upload", "key", key, "upload_id", upload.ID())
	return upload, nil
}

// complete assembles parts and fills in res.
func (e *Engine) complete(
	ctx context.Context,
	upload store.MultipartUpload,
	parts []store.Part,
	res *domain.ObjectResult,
) error {
	out, err := retry.Value(ctx, e.retrier, "completeMultipartUpload", func(ctx context.Context) (*store.PutOutput, error) {
		return upload.Complete(ctx, parts)
	}, "key", upload.Key(), "parts", len(parts))
	if err != nil {
		return e.copyError(ctx, errors.CopyDestinationUnwritable, "completeMultipartUpload", upload.Key(), err)
	}
	var total int64
	for _, p := range parts {
		total += p.Size
	}
	res.Bytes = total
	res.Parts = len(parts)
	res.ETag = out.ETag
	return nil
}

// abort discards upload with a context detached from ctx, so a cancelled
// session still cleans up.
func (e *Engine) abort(ctx context.Context, upload store.MultipartUpload) error {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.AbortTimeout)
	defer cancel()

	err := e.retrier.Do(abortCtx, "abortMultipartUpload", upload.Abort, "key", upload.Key(), "upload_id", upload.ID())
	if err != nil {
		e.logger.Warn("failed to abort multipart upload", "key", upload.Key(), "upload_id", upload.ID(), "error", err)
		e.metrics.CleanupFailed("abortMultipartUpload")
		return errors.NewCleanupError("abortMultipartUpload", upload.Key()+" ("+upload.ID()+")", err)
	}
	e.logger.Debug("aborted multipart upload", "key", upload.Key(), "upload_id", upload.ID())
	return nil
}
