// Package file implements store.Endpoint over a go-billy filesystem.
//
// The address bucket is the root directory and object keys are slash
// separated paths below it. Writes land in a temporary file that is renamed
// into place, so readers never observe a partial object. Multipart uploads
// keep their parts under a hidden staging directory until Complete
// concatenates them.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/checksum"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// StagingDir holds in-progress multipart uploads. It is never listed.
const StagingDir = ".forge-transfer"

const filePerm = 0o644

// Endpoint is a filesystem rooted at an address bucket.
type Endpoint struct {
	fs   billy.Filesystem
	addr domain.StorageAddress
}

var (
	_ store.Endpoint      = (*Endpoint)(nil)
	_ store.BucketEnsurer = (*Endpoint)(nil)
	_ store.UploadLister  = (*Endpoint)(nil)
)

// New creates an Endpoint over fs for addr.
func New(fs billy.Filesystem, addr domain.StorageAddress) *Endpoint {
	return &Endpoint{fs: fs, addr: addr}
}

// Address implements store.Endpoint.
func (e *Endpoint) Address() domain.StorageAddress {
	return e.addr
}

// EnsureBucket creates the root directory.
func (e *Endpoint) EnsureBucket(context.Context) error {
	if err := e.fs.MkdirAll("/", 0o755); err != nil {
		return fmt.Errorf("billy: mkdirall %q: %w", e.addr.Bucket, err)
	}
	return nil
}

// Stat implements store.Reader.
func (e *Endpoint) Stat(_ context.Context, key string) (*store.ObjectInfo, error) {
	info, err := e.fs.Stat(abs(key))
	if err != nil {
		return nil, wrap("stat", key, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("billy: stat %q: %w", key, errors.ErrObjectNotFound)
	}
	return &store.ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		ContentType:  e.detect(key),
		LastModified: info.ModTime(),
	}, nil
}

// detect sniffs the content type from the head of the file. Filesystems keep
// no metadata, so this is the only source.
func (e *Endpoint) detect(key string) string {
	f, err := e.fs.Open(abs(key))
	if err != nil {
		return ""
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return ""
	}
	return mt.String()
}

// List implements store.Reader. Keys come back in lexical order.
func (e *Endpoint) List(_ context.Context, prefix string) ([]store.ObjectInfo, error) {
	root := "/"
	if i := strings.LastIndex(prefix, "/"); i > 0 {
		root = abs(prefix[:i])
	}

	var objects []store.ObjectInfo
	err := util.Walk(e.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		key := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if info.IsDir() {
			if key == StagingDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		objects = append(objects, store.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("billy: walk %q: %w", root, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Open implements store.Reader.
func (e *Endpoint) Open(_ context.Context, key string, offset int64) (io.ReadCloser, error) {
	f, err := e.fs.Open(abs(key))
	if err != nil {
		return nil, wrap("open", key, err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("billy: seek %q: %w", key, err)
		}
	}
	return f, nil
}

// Put implements store.Writer. The returned checksum is computed from the
// bytes as written so the caller can compare it with its own.
func (e *Endpoint) Put(_ context.Context, in store.PutInput) (*store.PutOutput, error) {
	h, err := checksum.New(in.Checksum)
	if err != nil {
		return nil, err
	}
	err = e.commit(in.Key, func(w io.Writer) error {
		_, err := io.MultiWriter(w, h).Write(in.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &store.PutOutput{ETag: checksum.Hex(h), ChecksumValue: checksum.Base64(h)}, nil
}

// commit writes through a temporary file in the destination directory and
// renames it over key.
func (e *Endpoint) commit(key string, write func(io.Writer) error) error {
	dir := path.Dir(abs(key))
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("billy: mkdirall %q: %w", dir, err)
	}

	tmp, err := util.TempFile(e.fs, dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("billy: tempfile %q: %w", dir, err)
	}
	name := tmp.Name()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = e.fs.Remove(name)
		return fmt.Errorf("billy: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = e.fs.Remove(name)
		return fmt.Errorf("billy: close %q: %w", key, err)
	}
	if err := e.fs.Rename(name, abs(key)); err != nil {
		_ = e.fs.Remove(name)
		return fmt.Errorf("billy: rename %q: %w", key, err)
	}
	return nil
}

// CreateMultipart implements store.Writer.
func (e *Endpoint) CreateMultipart(_ context.Context, key string, opts store.MultipartOptions) (store.MultipartUpload, error) {
	if _, err := checksum.New(opts.Checksum); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	dir := path.Join("/", StagingDir, id)
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("billy: mkdirall %q: %w", dir, err)
	}
	return &upload{e: e, id: id, key: key, dir: dir, alg: opts.Checksum}, nil
}

// Uploads returns the IDs of multipart uploads that are neither completed
// nor aborted.
func (e *Endpoint) Uploads(context.Context) ([]string, error) {
	entries, err := e.fs.ReadDir(abs(StagingDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("billy: readdir %q: %w", StagingDir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.Name())
	}
	return ids, nil
}

type upload struct {
	e   *Endpoint
	id  string
	key string
	dir string
	alg domain.ChecksumAlgorithm
}

func (u *upload) ID() string  { return u.id }
func (u *upload) Key() string { return u.key }

func (u *upload) partName(number int32) string {
	return path.Join(u.dir, fmt.Sprintf("part-%05d", number))
}

// UploadPart stores the part body. A part uploaded twice keeps the last body.
func (u *upload) UploadPart(_ context.Context, number int32, body []byte, _ string) (store.Part, error) {
	if _, err := u.e.fs.Stat(u.dir); err != nil {
		return store.Part{}, wrap("stat", u.dir, err)
	}
	h, err := checksum.New(u.alg)
	if err != nil {
		return store.Part{}, err
	}
	_, _ = h.Write(body)

	name := u.partName(number)
	if err := util.WriteFile(u.e.fs, name, body, filePerm); err != nil {
		return store.Part{}, fmt.Errorf("billy: writefile %q: %w", name, err)
	}
	return store.Part{
		Number:        number,
		ETag:          checksum.Hex(h),
		ChecksumValue: checksum.Base64(h),
		Size:          int64(len(body)),
	}, nil
}

// Complete concatenates the parts into the object and drops the staging
// directory.
func (u *upload) Complete(_ context.Context, parts []store.Part) (*store.PutOutput, error) {
	for i, p := range parts {
		if p.Number != int32(i+1) {
			return nil, fmt.Errorf("%w: part %d at position %d", errors.ErrPartOrder, p.Number, i+1)
		}
	}

	h, err := checksum.New(u.alg)
	if err != nil {
		return nil, err
	}
	err = u.e.commit(u.key, func(w io.Writer) error {
		mw := io.MultiWriter(w, h)
		for _, p := range parts {
			if err := u.copyPart(mw, p.Number); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := util.RemoveAll(u.e.fs, u.dir); err != nil {
		return nil, fmt.Errorf("billy: removeall %q: %w", u.dir, err)
	}
	return &store.PutOutput{ETag: fmt.Sprintf("%s-%d", checksum.Hex(h), len(parts))}, nil
}

func (u *upload) copyPart(w io.Writer, number int32) error {
	f, err := u.e.fs.Open(u.partName(number))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Abort removes every staged part.
func (u *upload) Abort(context.Context) error {
	if err := util.RemoveAll(u.e.fs, u.dir); err != nil {
		return fmt.Errorf("billy: removeall %q: %w", u.dir, err)
	}
	return nil
}

// abs anchors key at the filesystem root. memfs treats relative and rooted
// names as distinct files.
func abs(key string) string {
	return "/" + strings.TrimPrefix(key, "/")
}

func wrap(op, key string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("billy: %s %q: %w", op, key, errors.ErrObjectNotFound)
	}
	return fmt.Errorf("billy: %s %q: %w", op, key, err)
}

// Factory opens file endpoints.
type Factory struct {
	open func(root string) billy.Filesystem
}

// Option configures a Factory.
type Option func(*Factory)

// WithFilesystem replaces the OS filesystem, typically with memfs in tests.
func WithFilesystem(open func(root string) billy.Filesystem) Option {
	return func(f *Factory) {
		f.open = open
	}
}

// NewFactory creates a Factory backed by the OS filesystem.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		open: func(root string) billy.Filesystem { return osfs.New(root) },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Open implements store.Factory. Filesystems take no credentials.
func (f *Factory) Open(_ context.Context, addr domain.StorageAddress, _ store.Credentials) (store.Endpoint, error) {
	if addr.Type != domain.ProviderFile {
		return nil, fmt.Errorf("%w: %s is not a file address", errors.ErrUnsupportedProvider, addr.Type)
	}
	return New(f.open(addr.Bucket), addr), nil
}
