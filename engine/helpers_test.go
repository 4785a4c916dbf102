package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"testing"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/checksum"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store/file"
)

func randomData(size int) []byte {
	data := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(data)
	return data
}

func hexDigest(t *testing.T, alg domain.ChecksumAlgorithm, data []byte) string {
	t.Helper()
	h, err := checksum.New(alg)
	require.NoError(t, err)
	_, _ = h.Write(data)
	return checksum.Hex(h)
}

func httpError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      fmt.Errorf("status %d", status),
		},
	}
}

// testEngine returns an engine with a fast retrier whose log lines land in
// the returned buffer.
func testEngine(opts ...Option) (*Engine, *bytes.Buffer) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	r := retry.New(retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}, retry.WithLogger(logger))
	all := append([]Option{WithRetrier(r), WithLogger(logger)}, opts...)
	return New(all...), &logs
}

func fileAddr(root, key string) domain.StorageAddress {
	return domain.StorageAddress{Type: domain.ProviderFile, Bucket: root, Key: key}
}

func newFileEndpoint(root string) *file.Endpoint {
	return file.New(memfs.New(), fileAddr(root, ""))
}

func seed(t *testing.T, ep store.Writer, key string, data []byte) {
	t.Helper()
	_, err := ep.Put(context.Background(), store.PutInput{Key: key, Body: data})
	require.NoError(t, err)
}

func readObject(t *testing.T, ep store.Reader, key string) []byte {
	t.Helper()
	rc, err := ep.Open(context.Background(), key, 0)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func streamingPlan(srcKey, dstKey string, partSize int64) domain.TransferPlan {
	return domain.TransferPlan{
		Source:      fileAddr("/src", srcKey),
		Destination: fileAddr("/dst", dstKey),
		Strategy:    domain.StrategyStreaming,
		SizeHint:    domain.SizeUnknown,
		PartSize:    partSize,
		Checksum:    domain.ChecksumSHA256,
	}
}

// recorder decorates a destination endpoint with a call trace and fault
// injection.
type recorder struct {
	store.Endpoint

	mu        sync.Mutex
	calls     []string
	puts      []store.PutInput
	uploads   []store.MultipartOptions
	partErrs  map[int32][]error
	putErrs   map[string]error
	onPart    func(number int32)
	onPut     func(key string)
	tamper    func(*store.Part)
	tamperPut func(*store.PutOutput)
	aborts    int
}

func newRecorder(ep store.Endpoint) *recorder {
	return &recorder{
		Endpoint: ep,
		partErrs: make(map[int32][]error),
		putErrs:  make(map[string]error),
	}
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (r *recorder) Put(ctx context.Context, in store.PutInput) (*store.PutOutput, error) {
	r.record("Put")
	if r.onPut != nil {
		r.onPut(in.Key)
	}
	r.mu.Lock()
	r.puts = append(r.puts, store.PutInput{Key: in.Key, ContentType: in.ContentType, Checksum: in.Checksum, ChecksumValue: in.ChecksumValue})
	err := r.putErrs[in.Key]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out, err := r.Endpoint.Put(ctx, in)
	if err == nil && r.tamperPut != nil {
		r.tamperPut(out)
	}
	return out, err
}

func (r *recorder) CreateMultipart(ctx context.Context, key string, opts store.MultipartOptions) (store.MultipartUpload, error) {
	r.record("CreateMultipart")
	r.mu.Lock()
	r.uploads = append(r.uploads, opts)
	r.mu.Unlock()
	up, err := r.Endpoint.CreateMultipart(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	return &recordedUpload{MultipartUpload: up, r: r}, nil
}

// nextPartErr pops the next injected failure for part number.
func (r *recorder) nextPartErr(number int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := r.partErrs[number]
	if len(errs) == 0 {
		return nil
	}
	err := errs[0]
	if len(errs) > 1 {
		r.partErrs[number] = errs[1:]
	} else {
		delete(r.partErrs, number)
	}
	return err
}

type recordedUpload struct {
	store.MultipartUpload
	r *recorder
}

func (u *recordedUpload) UploadPart(ctx context.Context, number int32, body []byte, sum string) (store.Part, error) {
	u.r.record("UploadPart")
	if u.r.onPart != nil {
		u.r.onPart(number)
	}
	if err := u.r.nextPartErr(number); err != nil {
		return store.Part{}, err
	}
	part, err := u.MultipartUpload.UploadPart(ctx, number, body, sum)
	if err == nil && u.r.tamper != nil {
		u.r.tamper(&part)
	}
	return part, err
}

func (u *recordedUpload) Complete(ctx context.Context, parts []store.Part) (*store.PutOutput, error) {
	u.r.record("Complete")
	return u.MultipartUpload.Complete(ctx, parts)
}

func (u *recordedUpload) Abort(ctx context.Context) error {
	u.r.record("Abort")
	u.r.mu.Lock()
	u.r.aborts++
	u.r.mu.Unlock()
	return u.MultipartUpload.Abort(ctx)
}

// copyRecorder adds server-side copies that read from source.
type copyRecorder struct {
	*recorder
	source store.Reader
}

func (c *copyRecorder) CopyObject(ctx context.Context, src store.ObjectRef, key string) (*store.PutOutput, error) {
	c.record("CopyObject")
	rc, err := c.source.Open(ctx, src.Key, 0)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return c.recorder.Endpoint.Put(ctx, store.PutInput{Key: key, Body: data})
}

func (c *copyRecorder) CopyPart(
	ctx context.Context,
	upload store.MultipartUpload,
	number int32,
	src store.ObjectRef,
	first, last int64,
) (store.Part, error) {
	c.record("CopyPart")
	if err := c.nextPartErr(number); err != nil {
		return store.Part{}, err
	}
	rc, err := c.source.Open(ctx, src.Key, first)
	if err != nil {
		return store.Part{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, last-first+1))
	if err != nil {
		return store.Part{}, err
	}
	inner := upload.(*recordedUpload).MultipartUpload
	return inner.UploadPart(ctx, number, data, "")
}

// typelessReader hides the source content type so the engine detects it.
type typelessReader struct {
	store.Reader
}

func (r typelessReader) Stat(ctx context.Context, key string) (*store.ObjectInfo, error) {
	info, err := r.Reader.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	info.ContentType = ""
	return info, nil
}

// flakyReader cuts the first stream it opens short after cut bytes.
type flakyReader struct {
	store.Reader

	mu    sync.Mutex
	cut   int64
	opens []int64
}

func (r *flakyReader) Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	r.mu.Lock()
	r.opens = append(r.opens, offset)
	first := len(r.opens) == 1
	r.mu.Unlock()

	rc, err := r.Reader.Open(ctx, key, offset)
	if err != nil || !first {
		return rc, err
	}
	return &cutReader{rc: rc, remaining: r.cut}, nil
}

type cutReader struct {
	rc        io.ReadCloser
	remaining int64
}

func (c *cutReader) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.rc.Read(p)
	c.remaining -= int64(n)
	return n, err
}

func (c *cutReader) Close() error { return c.rc.Close() }

// hangingOpen blocks its first Open until the call's context ends.
type hangingOpen struct {
	store.Reader

	mu    sync.Mutex
	opens int
}

func (h *hangingOpen) Open(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	h.mu.Lock()
	h.opens++
	first := h.opens == 1
	h.mu.Unlock()
	if first {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return h.Reader.Open(ctx, key, offset)
}
