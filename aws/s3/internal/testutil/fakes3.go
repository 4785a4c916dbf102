package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// FakeS3 is an in-memory S3-compatible server for round-trip tests against
// the real SDK client.
type FakeS3 struct {
	Server  *httptest.Server
	Backend *s3mem.Backend
}

// NewFakeS3 starts a server with the given buckets. It is shut down when the
// test ends.
func NewFakeS3(t *testing.T, buckets ...string) *FakeS3 {
	t.Helper()
	backend := s3mem.New()
	server := httptest.NewServer(gofakes3.New(backend).Server())
	t.Cleanup(server.Close)

	for _, b := range buckets {
		if err := backend.CreateBucket(b); err != nil {
			t.Fatalf("create bucket %s: %v", b, err)
		}
	}
	return &FakeS3{Server: server, Backend: backend}
}

// URL returns the server's base URL.
func (f *FakeS3) URL() string {
	return f.Server.URL
}
