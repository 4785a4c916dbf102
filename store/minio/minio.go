// Package minio implements store.Endpoint for S3-compatible services through
// minio-go.
//
// Endpoints use minio.Core so multipart uploads and ranged part copies are
// driven one call at a time by the copy engine instead of by the client's
// own upload manager.
package minio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

const (
	defaultRegion            = "us-east-1"
	defaultCredentialTimeout = 30 * time.Second
)

// Factory opens MinIO endpoints. Every endpoint it opens shares one HTTP
// transport.
type Factory struct {
	endpoint          string
	region            string
	transport         http.RoundTripper
	credentialTimeout time.Duration
	logger            *slog.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithEndpoint sets the endpoint used when an address has no override, for
// example "http://localhost:9000". Without a scheme TLS is used.
func WithEndpoint(endpoint string) Option {
	return func(f *Factory) {
		f.endpoint = endpoint
	}
}

// WithRegion sets the region used when an address names none.
func WithRegion(region string) Option {
	return func(f *Factory) {
		if region != "" {
			f.region = region
		}
	}
}

// WithTransport replaces the shared HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Factory) {
		if rt != nil {
			f.transport = rt
		}
	}
}

// WithCredentialTimeout bounds each grant lookup made while signing.
func WithCredentialTimeout(d time.Duration) Option {
	return func(f *Factory) {
		if d > 0 {
			f.credentialTimeout = d
		}
	}
}

// WithLogger configures the logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// NewFactory creates a Factory with the provided options.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		region:            defaultRegion,
		transport:         defaultTransport(),
		credentialTimeout: defaultCredentialTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return f
}

func defaultTransport() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	clone := base.Clone()
	clone.MaxIdleConns = 256
	clone.MaxIdleConnsPerHost = 64
	clone.IdleConnTimeout = 90 * time.Second
	clone.TLSHandshakeTimeout = 10 * time.Second
	clone.ExpectContinueTimeout = time.Second
	return clone
}

// Open implements store.Factory. The client signs every request with the
// grant creds returns at that moment.
func (f *Factory) Open(_ context.Context, addr domain.StorageAddress, creds store.Credentials) (store.Endpoint, error) {
	if addr.Type != domain.ProviderMinIO {
		return nil, fmt.Errorf("%w: %s is not a MinIO address", errors.ErrUnsupportedProvider, addr.Type)
	}
	raw := addr.Endpoint
	if raw == "" {
		raw = f.endpoint
	}
	host, secure, err := parseEndpoint(raw)
	if err != nil {
		return nil, err
	}
	region := addr.Region
	if region == "" {
		region = f.region
	}

	core, err := minio.NewCore(host, &minio.Options{
		Creds:        credentials.New(&grantProvider{creds: creds, timeout: f.credentialTimeout}),
		Secure:       secure,
		Region:       region,
		Transport:    f.transport,
		BucketLookup: minio.BucketLookupPath,
		MaxRetries:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: create client for %s: %w", host, err)
	}
	return NewEndpoint(core, addr, f.logger), nil
}

// parseEndpoint splits an endpoint URL into the host minio-go expects and
// whether TLS is used.
func parseEndpoint(raw string) (host string, secure bool, err error) {
	switch {
	case raw == "":
		return "", false, fmt.Errorf("%w: MinIO address needs an endpoint", errors.ErrInvalidAddress)
	case strings.HasPrefix(raw, "http://"):
		host, secure = strings.TrimPrefix(raw, "http://"), false
	case strings.HasPrefix(raw, "https://"):
		host, secure = strings.TrimPrefix(raw, "https://"), true
	case strings.Contains(raw, "://"):
		return "", false, fmt.Errorf("%w: unsupported endpoint scheme in %q", errors.ErrInvalidAddress, raw)
	default:
		host, secure = raw, true
	}
	host = strings.TrimSuffix(host, "/")
	if host == "" || strings.Contains(host, "/") {
		return "", false, fmt.Errorf("%w: endpoint %q must be a bare host", errors.ErrInvalidAddress, raw)
	}
	return host, secure, nil
}
