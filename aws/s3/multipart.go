package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/aws/s3/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// CreateMultipart implements store.Writer.
func (e *Endpoint) CreateMultipart(ctx context.Context, key string, opts store.MultipartOptions) (store.MultipartUpload, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: e.bucket(),
		Key:    aws.String(key),
	}
	// Server-side copies create uploads without an algorithm; the service
	// would otherwise demand part checksums that copied parts do not carry.
	if opts.Checksum != "" {
		input.ChecksumAlgorithm = checksumAlgorithm(opts.Checksum)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	out, err := e.api.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, errors.NewObjectError("createMultipartUpload", e.addr.Bucket, key, err)
	}
	return &upload{
		e:   e,
		id:  aws.ToString(out.UploadId),
		key: key,
		alg: opts.Checksum,
	}, nil
}

// upload is an in-progress S3 multipart upload.
type upload struct {
	e   *Endpoint
	id  string
	key string
	alg domain.ChecksumAlgorithm
}

func (u *upload) ID() string  { return u.id }
func (u *upload) Key() string { return u.key }

// UploadPart sends one part with its checksum.
func (u *upload) UploadPart(ctx context.Context, number int32, body []byte, checksumValue string) (store.Part, error) {
	input := &s3.UploadPartInput{
		Bucket:        u.e.bucket(),
		Key:           aws.String(u.key),
		UploadId:      aws.String(u.id),
		PartNumber:    aws.Int32(number),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if checksumValue != "" {
		input.ChecksumAlgorithm = checksumAlgorithm(u.alg)
		if u.alg == domain.ChecksumCRC32C {
			input.ChecksumCRC32C = aws.String(checksumValue)
		} else {
			input.ChecksumSHA256 = aws.String(checksumValue)
		}
	}

	out, err := u.e.api.UploadPart(ctx, input)
	if err != nil {
		return store.Part{}, errors.NewObjectError("uploadPart", u.e.addr.Bucket, u.key, err)
	}

	echoed := pick(u.alg, out.ChecksumSHA256, out.ChecksumCRC32C)
	if echoed == "" {
		echoed = checksumValue
	}
	return store.Part{
		Number:        number,
		ETag:          aws.ToString(out.ETag),
		ChecksumValue: echoed,
		Size:          int64(len(body)),
	}, nil
}

// Complete assembles parts, which must be numbered 1..n in order.
func (u *upload) Complete(ctx context.Context, parts []store.Part) (*store.PutOutput, error) {
	completed := make([]awstypes.CompletedPart, 0, len(parts))
	for i, p := range parts {
		if p.Number != int32(i+1) {
			return nil, fmt.Errorf("%w: part %d at position %d", transfererrors.ErrPartOrder, p.Number, i+1)
		}
		cp := awstypes.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.Number),
		}
		if p.ChecksumValue != "" {
			if u.alg == domain.ChecksumCRC32C {
				cp.ChecksumCRC32C = aws.String(p.ChecksumValue)
			} else {
				cp.ChecksumSHA256 = aws.String(p.ChecksumValue)
			}
		}
		completed = append(completed, cp)
	}

	out, err := u.e.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          u.e.bucket(),
		Key:             aws.String(u.key),
		UploadId:        aws.String(u.id),
		MultipartUpload: &awstypes.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return nil, errors.NewObjectError("completeMultipartUpload", u.e.addr.Bucket, u.key, err)
	}
	return &store.PutOutput{ETag: aws.ToString(out.ETag)}, nil
}

// Abort discards the upload and its parts.
func (u *upload) Abort(ctx context.Context) error {
	_, err := u.e.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   u.e.bucket(),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.id),
	})
	if err != nil {
		return errors.NewObjectError("abortMultipartUpload", u.e.addr.Bucket, u.key, err)
	}
	return nil
}
