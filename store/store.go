// Package store defines the storage primitives the copy engine drives.
//
// Each provider (Amazon S3, MinIO, a filesystem) implements Endpoint for one
// bucket or root directory. Implementations perform exactly one remote call
// per method and do not retry; the engine decorates every call with the retry
// layer. Copier is optional and only offered where server-side copies exist.
package store

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Reader reads objects.
type Reader interface {
	// Stat returns the object's metadata, or an error wrapping
	// errors.ErrObjectNotFound.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns every object under prefix, following pagination.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Open streams the object starting at offset.
	Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error)
}

// PutInput is a single-shot write.
type PutInput struct {
	Key         string
	Body        []byte
	ContentType string

	// Checksum is the algorithm and Base64 digest of Body, sent so the store
	// can verify the payload.
	Checksum      domain.ChecksumAlgorithm
	ChecksumValue string
}

// PutOutput is the store's acknowledgement of a write.
type PutOutput struct {
	ETag string

	// ChecksumValue is the Base64 digest reported by the store, or "" when it
	// reports none.
	ChecksumValue string
}

// MultipartOptions configure a new multipart upload.
type MultipartOptions struct {
	ContentType string
	Checksum    domain.ChecksumAlgorithm
}

// Part is an uploaded part.
type Part struct {
	Number        int32
	ETag          string
	ChecksumValue string
	Size          int64
}

// MultipartUpload is an in-progress multipart upload. Every created upload
// must be completed or aborted.
type MultipartUpload interface {
	ID() string
	Key() string

	// UploadPart uploads part number (1-based) with its Base64 digest.
	UploadPart(ctx context.Context, number int32, body []byte, checksumValue string) (Part, error)

	// Complete assembles the parts, which must be in ascending order.
	Complete(ctx context.Context, parts []Part) (*PutOutput, error)

	// Abort discards the upload and its parts.
	Abort(ctx context.Context) error
}

// Writer writes objects.
type Writer interface {
	Put(ctx context.Context, in PutInput) (*PutOutput, error)
	CreateMultipart(ctx context.Context, key string, opts MultipartOptions) (MultipartUpload, error)
}

// ObjectRef names an object in another bucket reachable from the same
// provisioning domain.
type ObjectRef struct {
	Bucket string
	Key    string
}

// Copier performs server-side copies into the endpoint.
type Copier interface {
	// CopyObject copies src to key in one call.
	CopyObject(ctx context.Context, src ObjectRef, key string) (*PutOutput, error)

	// CopyPart copies bytes [first, last] of src into part number of upload.
	CopyPart(ctx context.Context, upload MultipartUpload, number int32, src ObjectRef, first, last int64) (Part, error)
}

// Endpoint is one bucket or root directory.
type Endpoint interface {
	Reader
	Writer
	Address() domain.StorageAddress
}

// BucketEnsurer is implemented by endpoints that can create their bucket.
type BucketEnsurer interface {
	// EnsureBucket creates the bucket when it does not exist.
	EnsureBucket(ctx context.Context) error
}

// UploadLister is implemented by endpoints that can enumerate multipart
// uploads that were neither completed nor aborted.
type UploadLister interface {
	Uploads(ctx context.Context) ([]string, error)
}

// Credentials supplies the grant an endpoint signs requests with. It is
// consulted at time of use, so an implementation can re-provision grants
// that are about to expire.
type Credentials interface {
	Grant(ctx context.Context) (*domain.AccessGrant, error)
}

// Factory opens endpoints of one provider type.
type Factory interface {
	Open(ctx context.Context, addr domain.StorageAddress, creds Credentials) (Endpoint, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, addr domain.StorageAddress, creds Credentials) (Endpoint, error)

// Open implements Factory.
func (f FactoryFunc) Open(ctx context.Context, addr domain.StorageAddress, creds Credentials) (Endpoint, error) {
	return f(ctx, addr, creds)
}

// Registry maps provider types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.ProviderType]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[domain.ProviderType]Factory)}
}

// Register installs f for t, replacing any previous factory.
func (r *Registry) Register(t domain.ProviderType, f Factory) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
	return r
}

// Open opens an endpoint for addr.
func (r *Registry) Open(ctx context.Context, addr domain.StorageAddress, creds Credentials) (Endpoint, error) {
	r.mu.RLock()
	f, ok := r.factories[addr.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no store for %s", errors.ErrUnsupportedProvider, addr.Type)
	}
	return f.Open(ctx, addr, creds)
}

// StaticCredentials returns a fixed grant. It is meant for tests and for
// stores that need no credentials.
type StaticCredentials struct {
	AccessGrant *domain.AccessGrant
}

// Grant implements Credentials.
func (s StaticCredentials) Grant(context.Context) (*domain.AccessGrant, error) {
	if s.AccessGrant == nil {
		return &domain.AccessGrant{}, nil
	}
	return s.AccessGrant, nil
}
