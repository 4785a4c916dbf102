package engine

import (
	"context"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// serverSideCopy asks the destination store to copy the object. Objects up
// to MaxSingleCopySize take one CopyObject call; larger ones are copied in
// ranges into a multipart upload.
func (e *Engine) serverSideCopy(
	ctx context.Context,
	plan domain.TransferPlan,
	info *store.ObjectInfo,
	copier store.Copier,
	dst store.Writer,
	res *domain.ObjectResult,
	progress *Progress,
) (err error) {
	key := plan.Destination.Key
	src := store.ObjectRef{Bucket: plan.Source.Bucket, Key: plan.Source.Key}

	if info.Size <= e.opts.MaxSingleCopySize {
		out, err := retry.Value(ctx, e.retrier, "copyObject", func(ctx context.Context) (*store.PutOutput, error) {
			return copier.CopyObject(ctx, src, key)
		}, "key", key)
		if err != nil {
			return e.copyError(ctx, errors.CopyDestinationUnwritable, "copyObject", key, err)
		}
		res.Bytes = info.Size
		res.Parts = 1
		res.ETag = out.ETag
		progress.AddBytes(key, info.Size)
		e.metrics.AddBytes(res.Strategy, info.Size)
		return nil
	}

	upload, err := e.createMultipart(ctx, dst, key, info.ContentType, "")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if cerr := e.abort(ctx, upload); cerr != nil {
				res.CleanupErrors = append(res.CleanupErrors, cerr)
			}
		}
	}()

	partSize := e.copyPartSize(info.Size)
	var parts []store.Part
	for number, first := int32(1), int64(0); first < info.Size; number, first = number+1, first+partSize {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return e.copyError(ctx, errors.CopyCancelled, "uploadPartCopy", key, ctxErr)
		}
		last := min(first+partSize, info.Size) - 1

		part, err := retry.Value(ctx, e.retrier, "uploadPartCopy", func(ctx context.Context) (store.Part, error) {
			return copier.CopyPart(ctx, upload, number, src, first, last)
		}, "key", key, "part", number)
		if err != nil {
			return e.copyError(ctx, errors.CopyDestinationUnwritable, "uploadPartCopy", key, err)
		}
		parts = append(parts, part)
		progress.AddBytes(key, part.Size)
		progress.PartDone(key)
		e.metrics.AddBytes(res.Strategy, part.Size)
		e.metrics.PartDone(res.Strategy)
	}

	return e.complete(ctx, upload, parts, res)
}

// copyPartSize grows the configured range size until size fits in
// planner.MaxParts parts.
func (e *Engine) copyPartSize(size int64) int64 {
	partSize := e.opts.CopyPartSize
	for (size+partSize-1)/partSize > planner.MaxParts {
		partSize *= 2
	}
	return partSize
}
