package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/aws/s3/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/provision"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

const defaultRegion = "us-east-1"

// Factory opens S3 endpoints. It is safe for concurrent use and shares one
// HTTP client, and so one connection pool, across every endpoint it opens.
type Factory struct {
	cfg        aws.Config
	endpoint   string
	pathStyle  bool
	httpClient aws.HTTPClient
	logger     *slog.Logger
}

// NewFactory creates a Factory with the provided options.
//
// Example:
//
//	factory := s3.NewFactory(
//	    s3.WithRegion("us-west-2"),
//	    s3.WithEndpoint("http://localhost:9000"),
//	    s3.WithForcePathStyle(true),
//	)
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		httpClient: awshttp.NewBuildableClient(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cfg.Region == "" {
		f.cfg.Region = defaultRegion
	}
	if f.logger == nil {
		f.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return f
}

// LoadAWSConfig loads the default credential chain and shared config files.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.NewError("loadConfig", err)
	}
	return cfg, nil
}

// Open implements store.Factory.
func (f *Factory) Open(ctx context.Context, addr domain.StorageAddress, creds store.Credentials) (store.Endpoint, error) {
	if addr.Type != domain.ProviderS3 {
		return nil, fmt.Errorf("%w: %s is not an S3 address", transfererrors.ErrUnsupportedProvider, addr.Type)
	}
	provider, err := providerFor(ctx, creds, f.cfg.Credentials)
	if err != nil {
		return nil, err
	}
	return NewEndpoint(f.client(addr, provider), addr, f.logger), nil
}

// client builds an SDK client for addr. The SDK retryer is limited to a
// single attempt; retries are the caller's concern.
func (f *Factory) client(addr domain.StorageAddress, provider aws.CredentialsProvider) *s3.Client {
	region := addr.Region
	if region == "" {
		region = f.cfg.Region
	}
	endpoint := addr.Endpoint
	if endpoint == "" {
		endpoint = f.endpoint
	}

	return s3.NewFromConfig(f.cfg, func(o *s3.Options) {
		o.Region = region
		o.Credentials = provider
		o.HTTPClient = f.httpClient
		o.RetryMaxAttempts = 1
		o.UsePathStyle = f.pathStyle || addr.Endpoint != ""
		// Checksums are computed by the copy engine and sent explicitly.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// PolicyClient returns a client for editing the bucket policy of dst with
// the base credentials. It satisfies provision.PolicyClientFunc.
func (f *Factory) PolicyClient(_ context.Context, dst domain.StorageAddress) (provision.BucketPolicyAPI, error) {
	if f.cfg.Credentials == nil {
		return nil, fmt.Errorf("no base credentials to edit the bucket policy of %s", dst.Bucket)
	}
	return f.client(dst, f.cfg.Credentials), nil
}
