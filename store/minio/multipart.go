package minio

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// CreateMultipart implements store.Writer. Uploads for server-side copies
// are created without a checksum algorithm.
func (e *Endpoint) CreateMultipart(ctx context.Context, key string, opts store.MultipartOptions) (store.MultipartUpload, error) {
	putOpts := minio.PutObjectOptions{ContentType: opts.ContentType}
	if opts.Checksum != "" {
		putOpts.UserMetadata = map[string]string{"x-amz-checksum-algorithm": checksumAlgorithm(opts.Checksum)}
	}

	id, err := e.core.NewMultipartUpload(ctx, e.addr.Bucket, key, putOpts)
	if err != nil {
		return nil, e.objectError("createMultipartUpload", key, err)
	}
	return &upload{e: e, id: id, key: key, alg: opts.Checksum}, nil
}

type upload struct {
	e   *Endpoint
	id  string
	key string
	alg domain.ChecksumAlgorithm
}

func (u *upload) ID() string  { return u.id }
func (u *upload) Key() string { return u.key }

func (u *upload) UploadPart(ctx context.Context, number int32, body []byte, checksumValue string) (store.Part, error) {
	opts := minio.PutObjectPartOptions{DisableContentSha256: true}
	if checksumValue != "" {
		opts.CustomHeader = http.Header{}
		opts.CustomHeader.Set(checksumHeader(u.alg), checksumValue)
	}

	p, err := u.e.core.PutObjectPart(ctx, u.e.addr.Bucket, u.key, u.id, int(number), bytes.NewReader(body), int64(len(body)), opts)
	if err != nil {
		return store.Part{}, u.e.objectError("uploadPart", u.key, err)
	}

	echoed := pick(u.alg, p.ChecksumSHA256, p.ChecksumCRC32C)
	if echoed == "" {
		echoed = checksumValue
	}
	return store.Part{
		Number:        number,
		ETag:          p.ETag,
		ChecksumValue: echoed,
		Size:          int64(len(body)),
	}, nil
}

func (u *upload) Complete(ctx context.Context, parts []store.Part) (*store.PutOutput, error) {
	completed := make([]minio.CompletePart, 0, len(parts))
	for i, p := range parts {
		if p.Number != int32(i+1) {
			return nil, fmt.Errorf("%w: part %d at position %d", errors.ErrPartOrder, p.Number, i+1)
		}
		cp := minio.CompletePart{PartNumber: int(p.Number), ETag: p.ETag}
		if u.alg == domain.ChecksumCRC32C {
			cp.ChecksumCRC32C = p.ChecksumValue
		} else if u.alg != "" {
			cp.ChecksumSHA256 = p.ChecksumValue
		}
		completed = append(completed, cp)
	}

	info, err := u.e.core.CompleteMultipartUpload(ctx, u.e.addr.Bucket, u.key, u.id, completed, minio.PutObjectOptions{})
	if err != nil {
		return nil, u.e.objectError("completeMultipartUpload", u.key, err)
	}
	return &store.PutOutput{ETag: info.ETag}, nil
}

func (u *upload) Abort(ctx context.Context) error {
	if err := u.e.core.AbortMultipartUpload(ctx, u.e.addr.Bucket, u.key, u.id); err != nil {
		return u.e.objectError("abortMultipartUpload", u.key, err)
	}
	return nil
}
