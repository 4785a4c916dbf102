package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/address"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// Report aggregates the objects of one transfer.
type Report struct {
	Objects       []domain.ObjectResult
	Plans         []domain.TransferPlan
	Bytes         int64
	Parts         int
	CleanupErrors []error
}

func (r *Report) add(plan *domain.TransferPlan, res *domain.ObjectResult) {
	if plan != nil {
		r.Plans = append(r.Plans, *plan)
	}
	r.Objects = append(r.Objects, *res)
	r.Bytes += res.Bytes
	r.Parts += res.Parts
	r.CleanupErrors = append(r.CleanupErrors, res.CleanupErrors...)
}

// Transfer moves the object or every object under the prefix named by
// source to destination.
//
// Objects of a prefix transfer are moved one after another, best-effort:
// a failed object does not stop the rest, and the returned error is a
// CopyError joining every per-object failure. Cancellation stops the
// remaining objects. The report is never nil.
func (e *Engine) Transfer(
	ctx context.Context,
	source, destination domain.StorageAddress,
	src store.Reader,
	dst store.Writer,
	progress *Progress,
) (*Report, error) {
	report := &Report{}

	objects, single, err := e.resolve(ctx, source, src)
	if err != nil {
		return report, err
	}

	var total int64
	for _, o := range objects {
		total += o.Size
	}
	progress.SetTotal(total)
	e.logger.Debug("resolved transfer source", "source", source, "objects", len(objects), "bytes", total)

	var failed []error
	for i := range objects {
		info := &objects[i]
		if ctxErr := ctx.Err(); ctxErr != nil {
			failed = append(failed, e.copyError(ctx, errors.CopyCancelled, "transfer", info.Key, ctxErr))
			break
		}

		plan, res, err := e.transferOne(ctx, source, destination, info, single, src, dst, progress)
		report.add(plan, res)
		progress.ObjectDone(info.Key, err)
		if err != nil {
			failed = append(failed, err)
			if errors.IsCancelled(err) {
				break
			}
		}
	}

	switch {
	case len(failed) == 0:
		return report, nil
	case single:
		return report, failed[0]
	}

	kind := errors.CopySourceUnreadable
	var first *errors.CopyError
	if errors.As(failed[0], &first) {
		kind = first.Kind
	}
	if ctx.Err() != nil {
		kind = errors.CopyCancelled
	}
	return report, errors.NewCopyError(kind, "transfer", source.Prefix,
		fmt.Errorf("%d of %d objects failed: %w", len(failed), len(objects), errors.Join(failed...)))
}

func (e *Engine) transferOne(
	ctx context.Context,
	source, destination domain.StorageAddress,
	info *store.ObjectInfo,
	single bool,
	src store.Reader,
	dst store.Writer,
	progress *Progress,
) (*domain.TransferPlan, *domain.ObjectResult, error) {
	destKey := address.DestinationKey(destination, info.Key, single)
	plan, err := e.planner.Plan(source.WithKey(info.Key), destination.WithKey(destKey), info.Size)
	if err != nil {
		err = errors.NewCopyError(errors.CopyDestinationUnwritable, "plan", info.Key, err)
		res := &domain.ObjectResult{SourceKey: info.Key, DestinationKey: destKey, Err: err}
		e.metrics.ObjectDone("", err)
		return nil, res, err
	}
	res, err := e.execute(ctx, plan, info, src, dst, progress)
	return &plan, res, err
}

// resolve returns the objects source names. A single key is stat'ed; a
// prefix is listed, and the folder marker equal to the prefix itself is
// skipped.
func (e *Engine) resolve(ctx context.Context, source domain.StorageAddress, src store.Reader) ([]store.ObjectInfo, bool, error) {
	if !source.IsPrefix() {
		info, err := e.stat(ctx, src, source.Key)
		if err != nil {
			return nil, true, err
		}
		return []store.ObjectInfo{*info}, true, nil
	}

	listed, err := retry.Value(ctx, e.retrier, "listObjects", func(ctx context.Context) ([]store.ObjectInfo, error) {
		return src.List(ctx, source.Prefix)
	}, "prefix", source.Prefix)
	if err != nil {
		return nil, false, e.copyError(ctx, errors.CopySourceUnreadable, "listObjects", source.Prefix, err)
	}

	objects := make([]store.ObjectInfo, 0, len(listed))
	for _, o := range listed {
		if o.Key == source.Prefix && strings.HasSuffix(o.Key, "/") {
			continue
		}
		objects = append(objects, o)
	}
	if len(objects) == 0 {
		return nil, false, errors.NewCopyError(errors.CopySourceUnreadable, "listObjects", source.Prefix, errors.ErrObjectNotFound)
	}
	return objects, false, nil
}
