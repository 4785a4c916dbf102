package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/aws/s3/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/aws/s3/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// Endpoint is one S3 bucket.
type Endpoint struct {
	api    s3api.S3API
	addr   domain.StorageAddress
	logger *slog.Logger
}

var (
	_ store.Endpoint      = (*Endpoint)(nil)
	_ store.Copier        = (*Endpoint)(nil)
	_ store.BucketEnsurer = (*Endpoint)(nil)
	_ store.UploadLister  = (*Endpoint)(nil)
)

// NewEndpoint creates an Endpoint for addr using api.
func NewEndpoint(api s3api.S3API, addr domain.StorageAddress, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Endpoint{api: api, addr: addr, logger: logger}
}

// Address implements store.Endpoint.
func (e *Endpoint) Address() domain.StorageAddress {
	return e.addr
}

func (e *Endpoint) bucket() *string {
	return aws.String(e.addr.Bucket)
}

// Stat implements store.Reader.
func (e *Endpoint) Stat(ctx context.Context, key string) (*store.ObjectInfo, error) {
	out, err := e.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: e.bucket(),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.NewObjectError("headObject", e.addr.Bucket, key, err)
	}
	return &store.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// List implements store.Reader. Zero-byte keys ending in "/" are folder
// markers created by consoles and are skipped.
func (e *Endpoint) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(e.api, &s3.ListObjectsV2Input{
		Bucket: e.bucket(),
		Prefix: aws.String(prefix),
	})

	var objects []store.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.NewObjectError("listObjectsV2", e.addr.Bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			size := aws.ToInt64(obj.Size)
			if size == 0 && strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, store.ObjectInfo{
				Key:          key,
				Size:         size,
				ETag:         aws.ToString(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

// Open implements store.Reader.
func (e *Endpoint) Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	in := &s3.GetObjectInput{
		Bucket: e.bucket(),
		Key:    aws.String(key),
	}
	if offset > 0 {
		in.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}
	out, err := e.api.GetObject(ctx, in)
	if err != nil {
		return nil, errors.NewObjectError("getObject", e.addr.Bucket, key, err)
	}
	return out.Body, nil
}

// Put implements store.Writer. The checksum is sent for server-side
// verification and the value the service echoes back is returned.
func (e *Endpoint) Put(ctx context.Context, in store.PutInput) (*store.PutOutput, error) {
	input := &s3.PutObjectInput{
		Bucket:        e.bucket(),
		Key:           aws.String(in.Key),
		Body:          bytes.NewReader(in.Body),
		ContentLength: aws.Int64(int64(len(in.Body))),
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}
	if in.ChecksumValue != "" {
		switch in.Checksum {
		case domain.ChecksumCRC32C:
			input.ChecksumAlgorithm = awstypes.ChecksumAlgorithmCrc32c
			input.ChecksumCRC32C = aws.String(in.ChecksumValue)
		default:
			input.ChecksumAlgorithm = awstypes.ChecksumAlgorithmSha256
			input.ChecksumSHA256 = aws.String(in.ChecksumValue)
		}
	}

	out, err := e.api.PutObject(ctx, input)
	if err != nil {
		return nil, errors.NewObjectError("putObject", e.addr.Bucket, in.Key, err)
	}
	return &store.PutOutput{
		ETag:          aws.ToString(out.ETag),
		ChecksumValue: pick(in.Checksum, out.ChecksumSHA256, out.ChecksumCRC32C),
	}, nil
}

// pick returns the echoed checksum for alg.
func pick(alg domain.ChecksumAlgorithm, sha256, crc32c *string) string {
	if alg == domain.ChecksumCRC32C {
		return aws.ToString(crc32c)
	}
	return aws.ToString(sha256)
}

func checksumAlgorithm(alg domain.ChecksumAlgorithm) awstypes.ChecksumAlgorithm {
	if alg == domain.ChecksumCRC32C {
		return awstypes.ChecksumAlgorithmCrc32c
	}
	return awstypes.ChecksumAlgorithmSha256
}

// copySource renders the x-amz-copy-source value with each key segment
// escaped.
func copySource(ref store.ObjectRef) string {
	segments := strings.Split(ref.Key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return ref.Bucket + "/" + strings.Join(segments, "/")
}

// CopyObject implements store.Copier.
func (e *Endpoint) CopyObject(ctx context.Context, src store.ObjectRef, key string) (*store.PutOutput, error) {
	out, err := e.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     e.bucket(),
		Key:        aws.String(key),
		CopySource: aws.String(copySource(src)),
	})
	if err != nil {
		return nil, errors.NewObjectError("copyObject", e.addr.Bucket, key, err)
	}
	var etag string
	if out.CopyObjectResult != nil {
		etag = aws.ToString(out.CopyObjectResult.ETag)
	}
	return &store.PutOutput{ETag: etag}, nil
}

// CopyPart implements store.Copier.
func (e *Endpoint) CopyPart(
	ctx context.Context,
	upload store.MultipartUpload,
	number int32,
	src store.ObjectRef,
	first, last int64,
) (store.Part, error) {
	out, err := e.api.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
		Bucket:          e.bucket(),
		Key:             aws.String(upload.Key()),
		UploadId:        aws.String(upload.ID()),
		PartNumber:      aws.Int32(number),
		CopySource:      aws.String(copySource(src)),
		CopySourceRange: aws.String(fmt.Sprintf("bytes=%d-%d", first, last)),
	})
	if err != nil {
		return store.Part{}, errors.NewObjectError("uploadPartCopy", e.addr.Bucket, upload.Key(), err)
	}
	part := store.Part{Number: number, Size: last - first + 1}
	if out.CopyPartResult != nil {
		part.ETag = aws.ToString(out.CopyPartResult.ETag)
	}
	return part, nil
}

// EnsureBucket creates the bucket when HeadBucket reports it missing.
func (e *Endpoint) EnsureBucket(ctx context.Context) error {
	_, err := e.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: e.bucket()})
	if err == nil {
		return nil
	}
	translated := errors.Translate(err)
	if !errors.IsObjectNotFound(translated) && !errors.IsBucketNotFound(translated) {
		return errors.NewBucketError("headBucket", e.addr.Bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: e.bucket()}
	if r := e.addr.Region; r != "" && r != "us-east-1" {
		input.CreateBucketConfiguration = &awstypes.CreateBucketConfiguration{
			LocationConstraint: awstypes.BucketLocationConstraint(r),
		}
	}
	if _, err := e.api.CreateBucket(ctx, input); err != nil {
		var owned *awstypes.BucketAlreadyOwnedByYou
		if stderrors.As(err, &owned) {
			return nil
		}
		return errors.NewBucketError("createBucket", e.addr.Bucket, err)
	}
	e.logger.Info("created destination bucket", "bucket", e.addr.Bucket, "region", e.addr.Region)
	return nil
}

// Uploads returns the IDs of multipart uploads in the bucket that were
// neither completed nor aborted.
func (e *Endpoint) Uploads(ctx context.Context) ([]string, error) {
	var (
		ids       []string
		keyMarker *string
		idMarker  *string
	)
	for {
		out, err := e.api.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
			Bucket:         e.bucket(),
			KeyMarker:      keyMarker,
			UploadIdMarker: idMarker,
		})
		if err != nil {
			return nil, errors.NewBucketError("listMultipartUploads", e.addr.Bucket, err)
		}
		for _, u := range out.Uploads {
			ids = append(ids, aws.ToString(u.UploadId))
		}
		if !aws.ToBool(out.IsTruncated) {
			return ids, nil
		}
		keyMarker, idMarker = out.NextKeyMarker, out.NextUploadIdMarker
	}
}
