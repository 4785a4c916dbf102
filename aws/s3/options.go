package s3

import (
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Option configures a Factory.
type Option func(*Factory)

// WithAWSConfig sets the base AWS configuration. Its credentials are used
// only for grants that carry no keys and for bucket policy edits.
func WithAWSConfig(cfg aws.Config) Option {
	return func(f *Factory) {
		f.cfg = cfg
	}
}

// WithRegion sets the region used when an address names none.
func WithRegion(region string) Option {
	return func(f *Factory) {
		if region != "" {
			f.cfg.Region = region
		}
	}
}

// WithEndpoint sets the endpoint used when an address has no override.
// This is useful for S3-compatible services or local testing.
func WithEndpoint(endpoint string) Option {
	return func(f *Factory) {
		f.endpoint = endpoint
	}
}

// WithForcePathStyle forces the use of path-style URLs instead of virtual-hosted style.
// This is required for S3-compatible services that don't support virtual hosting.
func WithForcePathStyle(forcePathStyle bool) Option {
	return func(f *Factory) {
		f.pathStyle = forcePathStyle
	}
}

// WithHTTPClient replaces the HTTP client shared by every endpoint the
// factory opens.
func WithHTTPClient(client aws.HTTPClient) Option {
	return func(f *Factory) {
		if client != nil {
			f.httpClient = client
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
