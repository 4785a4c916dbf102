package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// Endpoint is one bucket of an S3-compatible service.
type Endpoint struct {
	core   *minio.Core
	addr   domain.StorageAddress
	logger *slog.Logger
}

var (
	_ store.Endpoint      = (*Endpoint)(nil)
	_ store.Copier        = (*Endpoint)(nil)
	_ store.BucketEnsurer = (*Endpoint)(nil)
	_ store.UploadLister  = (*Endpoint)(nil)
)

// NewEndpoint creates an Endpoint for addr using core.
func NewEndpoint(core *minio.Core, addr domain.StorageAddress, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Endpoint{core: core, addr: addr, logger: logger}
}

// Address implements store.Endpoint.
func (e *Endpoint) Address() domain.StorageAddress {
	return e.addr
}

// Stat implements store.Reader.
func (e *Endpoint) Stat(ctx context.Context, key string) (*store.ObjectInfo, error) {
	info, err := e.core.StatObject(ctx, e.addr.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, e.objectError("statObject", key, err)
	}
	return &store.ObjectInfo{
		Key:          key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// List implements store.Reader. Zero-byte keys ending in "/" are folder
// markers and are skipped.
func (e *Endpoint) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objects []store.ObjectInfo
	for obj := range e.core.Client.ListObjects(ctx, e.addr.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, e.objectError("listObjects", prefix, obj.Err)
		}
		if obj.Size == 0 && strings.HasSuffix(obj.Key, "/") {
			continue
		}
		objects = append(objects, store.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return objects, nil
}

// Open implements store.Reader. The request is sent before Open returns, so
// a missing object fails here rather than on the first read.
func (e *Endpoint) Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if offset > 0 {
		if err := opts.SetRange(offset, 0); err != nil {
			return nil, e.objectError("getObject", key, err)
		}
	}
	body, _, _, err := e.core.GetObject(ctx, e.addr.Bucket, key, opts)
	if err != nil {
		return nil, e.objectError("getObject", key, err)
	}
	return body, nil
}

// Put implements store.Writer.
func (e *Endpoint) Put(ctx context.Context, in store.PutInput) (*store.PutOutput, error) {
	opts := minio.PutObjectOptions{
		ContentType:          in.ContentType,
		DisableContentSha256: true,
	}
	if in.ChecksumValue != "" {
		opts.UserMetadata = map[string]string{checksumHeader(in.Checksum): in.ChecksumValue}
	}

	info, err := e.core.PutObject(ctx, e.addr.Bucket, in.Key, bytes.NewReader(in.Body), int64(len(in.Body)), "", "", opts)
	if err != nil {
		return nil, e.objectError("putObject", in.Key, err)
	}
	return &store.PutOutput{
		ETag:          info.ETag,
		ChecksumValue: pick(in.Checksum, info.ChecksumSHA256, info.ChecksumCRC32C),
	}, nil
}

// CopyObject implements store.Copier.
func (e *Endpoint) CopyObject(ctx context.Context, src store.ObjectRef, key string) (*store.PutOutput, error) {
	info, err := e.core.Client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: e.addr.Bucket, Object: key},
		minio.CopySrcOptions{Bucket: src.Bucket, Object: src.Key},
	)
	if err != nil {
		return nil, e.objectError("copyObject", key, err)
	}
	return &store.PutOutput{ETag: info.ETag}, nil
}

// CopyPart implements store.Copier.
func (e *Endpoint) CopyPart(
	ctx context.Context,
	upload store.MultipartUpload,
	number int32,
	src store.ObjectRef,
	first, last int64,
) (store.Part, error) {
	length := last - first + 1
	p, err := e.core.CopyObjectPart(ctx, src.Bucket, src.Key, e.addr.Bucket, upload.Key(), upload.ID(), int(number), first, length, nil)
	if err != nil {
		return store.Part{}, e.objectError("uploadPartCopy", upload.Key(), err)
	}
	return store.Part{Number: number, ETag: p.ETag, Size: length}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (e *Endpoint) EnsureBucket(ctx context.Context) error {
	exists, err := e.core.BucketExists(ctx, e.addr.Bucket)
	if err != nil {
		return e.bucketError("bucketExists", err)
	}
	if exists {
		return nil
	}
	err = e.core.MakeBucket(ctx, e.addr.Bucket, minio.MakeBucketOptions{Region: e.addr.Region})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return e.bucketError("makeBucket", err)
	}
	e.logger.Info("created destination bucket", "bucket", e.addr.Bucket, "endpoint", e.addr.Endpoint)
	return nil
}

// Uploads returns the IDs of multipart uploads in the bucket that were
// neither completed nor aborted.
func (e *Endpoint) Uploads(ctx context.Context) ([]string, error) {
	var (
		ids       []string
		keyMarker string
		idMarker  string
	)
	for {
		res, err := e.core.ListMultipartUploads(ctx, e.addr.Bucket, "", keyMarker, idMarker, "", 1000)
		if err != nil {
			return nil, e.bucketError("listMultipartUploads", err)
		}
		for _, u := range res.Uploads {
			ids = append(ids, u.UploadID)
		}
		if !res.IsTruncated {
			return ids, nil
		}
		keyMarker, idMarker = res.NextKeyMarker, res.NextUploadIDMarker
	}
}

func checksumHeader(alg domain.ChecksumAlgorithm) string {
	if alg == domain.ChecksumCRC32C {
		return "x-amz-checksum-crc32c"
	}
	return "x-amz-checksum-sha256"
}

func checksumAlgorithm(alg domain.ChecksumAlgorithm) string {
	if alg == domain.ChecksumCRC32C {
		return "CRC32C"
	}
	return "SHA256"
}

// pick returns the echoed checksum for alg.
func pick(alg domain.ChecksumAlgorithm, sha256, crc32c string) string {
	if alg == domain.ChecksumCRC32C {
		return crc32c
	}
	return sha256
}

func (e *Endpoint) objectError(op, key string, err error) error {
	return fmt.Errorf("minio.%s %s/%s: %w", op, e.addr.Bucket, key, translate(err))
}

func (e *Endpoint) bucketError(op string, err error) error {
	return fmt.Errorf("minio.%s bucket %s: %w", op, e.addr.Bucket, translate(err))
}

// translate attaches errors.ErrObjectNotFound to missing-object responses
// and errors.ErrChecksumMismatch to digest rejections, keeping the
// minio.ErrorResponse in the chain for retry classification.
func translate(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %w", errors.ErrObjectNotFound, err)
	case "BadDigest", "InvalidDigest", "XAmzContentChecksumMismatch", "XAmzContentSHA256Mismatch":
		return fmt.Errorf("%w: %w", errors.ErrChecksumMismatch, err)
	case "NoSuchBucket", "NoSuchUpload":
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", errors.ErrObjectNotFound, err)
	}
	return err
}
