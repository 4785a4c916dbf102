package engine

import (
	"bytes"
	"context"
	"fmt"
	"hash"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/checksum"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// chunk is one part read from the source. data is a pooled buffer.
type chunk struct {
	number int32
	data   []byte
}

// stream copies the object through the process, as a single put when the
// plan allows it and as a multipart upload otherwise.
func (e *Engine) stream(
	ctx context.Context,
	plan domain.TransferPlan,
	info *store.ObjectInfo,
	src store.Reader,
	dst store.Writer,
	res *domain.ObjectResult,
	progress *Progress,
) error {
	whole, err := checksum.New(plan.Checksum)
	if err != nil {
		return errors.NewCopyError(errors.CopyDestinationUnwritable, "checksum", plan.Destination.Key, err)
	}

	reader := e.openSource(ctx, src, plan.Source.Key)
	defer func() { _ = reader.Close() }()

	if plan.Strategy != domain.StrategySingleShot {
		return e.multipart(ctx, plan, reader, whole, info.ContentType, dst, res, progress)
	}
	return e.singleShot(ctx, plan, reader, whole, info.ContentType, dst, res, progress)
}

// singleShot buffers up to the multipart threshold and writes it with one
// Put. A source that turns out larger continues as a multipart upload with
// the buffered bytes chained ahead of the rest.
func (e *Engine) singleShot(
	ctx context.Context,
	plan domain.TransferPlan,
	reader io.Reader,
	whole hash.Hash,
	contentType string,
	dst store.Writer,
	res *domain.ObjectResult,
	progress *Progress,
) error {
	key := plan.Destination.Key
	limit := e.planner.Options().MultipartThreshold

	buf := e.chunks.Get(int(limit))
	defer e.chunks.Put(buf)

	n, err := io.ReadFull(reader, buf)
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return e.put(ctx, plan, buf[:n], whole, contentType, dst, res, progress)
	case err != nil:
		return e.copyError(ctx, errors.CopySourceUnreadable, "getObject", plan.Source.Key, err)
	}

	var peek [1]byte
	m, err := io.ReadFull(reader, peek[:])
	switch {
	case err == io.EOF:
		return e.put(ctx, plan, buf[:n], whole, contentType, dst, res, progress)
	case err != nil:
		return e.copyError(ctx, errors.CopySourceUnreadable, "getObject", plan.Source.Key, err)
	}

	e.logger.Debug("source exceeds single-shot threshold, switching to multipart",
		"key", key,
		"threshold", humanize.IBytes(uint64(limit)),
	)
	res.Strategy = domain.StrategyStreaming
	body := io.MultiReader(bytes.NewReader(buf[:n]), bytes.NewReader(peek[:m]), reader)
	return e.multipart(ctx, plan, body, whole, contentType, dst, res, progress)
}

func (e *Engine) put(
	ctx context.Context,
	plan domain.TransferPlan,
	data []byte,
	whole hash.Hash,
	contentType string,
	dst store.Writer,
	res *domain.ObjectResult,
	progress *Progress,
) error {
	key := plan.Destination.Key
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	_, _ = whole.Write(data)
	sum := checksum.Base64(whole)

	out, err := retry.Value(ctx, e.retrier, "putObject", func(ctx context.Context) (*store.PutOutput, error) {
		return dst.Put(ctx, store.PutInput{
			Key:           key,
			Body:          data,
			ContentType:   contentType,
			Checksum:      plan.Checksum,
			ChecksumValue: sum,
		})
	}, "key", key)
	if err != nil {
		return e.writeError(ctx, "putObject", key, sum, err)
	}
	if out.ChecksumValue != "" && out.ChecksumValue != sum {
		return errors.NewChecksumMismatch("putObject", key, sum, out.ChecksumValue)
	}

	size := int64(len(data))
	res.Bytes = size
	res.Parts = 1
	res.ETag = out.ETag
	res.Checksum = checksum.Hex(whole)
	progress.AddBytes(key, size)
	e.metrics.AddBytes(res.Strategy, size)
	return nil
}

// multipart pipes body through a bounded queue of part-sized chunks. A
// producer goroutine reads and hashes the stream in order; a consumer
// uploads the parts in the same order. The upload is created when the first
// chunk arrives, so the content type can be detected from it.
func (e *Engine) multipart(
	ctx context.Context,
	plan domain.TransferPlan,
	body io.Reader,
	whole hash.Hash,
	contentType string,
	dst store.Writer,
	res *domain.ObjectResult,
	progress *Progress,
) (err error) {
	key := plan.Destination.Key
	partSize := plan.PartSize
	if partSize <= 0 {
		partSize = e.planner.Options().PartSize
	}

	var upload store.MultipartUpload
	defer func() {
		if err != nil && upload != nil {
			if cerr := e.abort(ctx, upload); cerr != nil {
				res.CleanupErrors = append(res.CleanupErrors, cerr)
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan chunk, e.opts.BufferParts)

	g.Go(func() error {
		defer close(queue)
		return e.produce(gctx, body, int(partSize), whole, queue, plan.Source.Key)
	})

	var parts []store.Part
	g.Go(func() error {
		for c := range queue {
			if upload == nil {
				if contentType == "" {
					contentType = mimetype.Detect(c.data).String()
				}
				u, err := e.createMultipart(gctx, dst, key, contentType, plan.Checksum)
				if err != nil {
					e.chunks.Put(c.data)
					return err
				}
				upload = u
			}

			part, err := e.uploadPart(gctx, upload, c, plan.Checksum)
			e.chunks.Put(c.data)
			if err != nil {
				return err
			}
			parts = append(parts, part)
			progress.AddBytes(key, part.Size)
			progress.PartDone(key)
			e.metrics.AddBytes(res.Strategy, part.Size)
			e.metrics.PartDone(res.Strategy)
		}
		return nil
	})

	if werr := g.Wait(); werr != nil {
		return e.copyError(ctx, errors.CopyDestinationUnwritable, "uploadPart", key, werr)
	}
	if upload == nil {
		return errors.NewCopyError(errors.CopySourceUnreadable, "getObject", plan.Source.Key, io.ErrUnexpectedEOF)
	}
	if err := e.complete(ctx, upload, parts, res); err != nil {
		return err
	}
	res.Checksum = checksum.Hex(whole)
	return nil
}

// produce reads body into chunks until EOF. It always sends at least one
// chunk so an empty stream still becomes an object.
func (e *Engine) produce(
	ctx context.Context,
	body io.Reader,
	partSize int,
	whole hash.Hash,
	out chan<- chunk,
	sourceKey string,
) error {
	for number := int32(1); ; number++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if number > planner.MaxParts {
			return errors.NewCopyError(errors.CopyDestinationUnwritable, "uploadPart", sourceKey,
				fmt.Errorf("object needs more than %d parts of %s", planner.MaxParts, humanize.IBytes(uint64(partSize))))
		}

		buf := e.chunks.Get(partSize)
		n, err := io.ReadFull(body, buf)
		last := err == io.EOF || err == io.ErrUnexpectedEOF
		if err != nil && !last {
			e.chunks.Put(buf)
			return e.copyError(ctx, errors.CopySourceUnreadable, "getObject", sourceKey, err)
		}
		if n == 0 && number > 1 {
			e.chunks.Put(buf)
			return nil
		}

		_, _ = whole.Write(buf[:n])
		select {
		case out <- chunk{number: number, data: buf[:n]}:
		case <-ctx.Done():
			e.chunks.Put(buf)
			return ctx.Err()
		}
		if last {
			return nil
		}
	}
}

// uploadPart sends one chunk and verifies the checksum the store echoes or
// reports the digest the store rejected.
func (e *Engine) uploadPart(
	ctx context.Context,
	upload store.MultipartUpload,
	c chunk,
	alg domain.ChecksumAlgorithm,
) (store.Part, error) {
	key := upload.Key()
	if err := ctx.Err(); err != nil {
		return store.Part{}, err
	}
	sum, err := checksum.Sum(alg, c.data)
	if err != nil {
		return store.Part{}, errors.NewCopyError(errors.CopyDestinationUnwritable, "checksum", key, err)
	}

	part, err := retry.Value(ctx, e.retrier, "uploadPart", func(ctx context.Context) (store.Part, error) {
		return upload.UploadPart(ctx, c.number, c.data, sum)
	}, "key", key, "part", c.number)
	if err != nil {
		return store.Part{}, e.writeError(ctx, "uploadPart", key, sum, err)
	}
	if part.ChecksumValue != "" && part.ChecksumValue != sum {
		return store.Part{}, errors.NewChecksumMismatch("uploadPart", key, sum, part.ChecksumValue)
	}
	if part.Size == 0 {
		part.Size = int64(len(c.data))
	}
	return part, nil
}
