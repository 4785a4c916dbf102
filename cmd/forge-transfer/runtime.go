package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/aws/s3"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/config"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/engine"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/provision"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/services/aws/secrets"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/session"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store/file"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store/minio"
)

const secretCacheSize = 128

// runtime is everything a copy needs, built once per process.
type runtime struct {
	runner  *session.Runner
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	m := metrics.New()
	retrier := retry.New(cfg.RetryPolicy(),
		retry.WithLogger(logger),
		retry.WithObserver(m.RetryObserver()))

	awsCfg, err := s3.LoadAWSConfig(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, err
	}

	s3Factory := s3.NewFactory(
		s3.WithAWSConfig(awsCfg),
		s3.WithRegion(cfg.AWS.Region),
		s3.WithEndpoint(cfg.AWS.Endpoint),
		s3.WithForcePathStyle(cfg.AWS.PathStyle),
		s3.WithLogger(logger))
	stores := store.NewRegistry().
		Register(domain.ProviderS3, s3Factory).
		Register(domain.ProviderMinIO, minio.NewFactory(
			minio.WithEndpoint(cfg.MinIO.Endpoint),
			minio.WithRegion(cfg.MinIO.Region),
			minio.WithCredentialTimeout(cfg.Retry.CallTimeout),
			minio.WithLogger(logger))).
		Register(domain.ProviderFile, file.NewFactory())

	var secretOpts []secrets.Option
	secretOpts = append(secretOpts, secrets.WithLogger(logger))
	if ttl := cfg.Credentials.SecretCacheTTL; ttl > 0 {
		secretOpts = append(secretOpts, secrets.WithCache(secrets.NewInMemoryCache(ttl, secretCacheSize), ttl))
	}
	secretClient, err := secrets.NewClientFromConfig(awsCfg, secretOpts...)
	if err != nil {
		return nil, fmt.Errorf("create secrets client: %w", err)
	}
	fromSecrets := provision.NewSecretProvisioner(secretClient, cfg.Credentials.DefaultSecretName)

	router := provision.NewRouter().
		Handle(domain.ProviderMinIO, fromSecrets).
		Handle(domain.ProviderFile, provision.LocalProvisioner{}).
		HandleSecrets(fromSecrets)
	cr := cfg.Credentials
	if cr.DefaultRoleARN == "" && cr.DefaultSecretName != "" && !cr.CreateRoles {
		router.Handle(domain.ProviderS3, fromSecrets)
	} else {
		router.Handle(domain.ProviderS3, newSTSProvisioner(cr,
			sts.NewFromConfig(awsCfg), iam.NewFromConfig(awsCfg), s3Factory.PolicyClient, logger))
	}

	manager := provision.NewManager(router,
		provision.WithMinValidity(cfg.Credentials.MinValidity),
		provision.WithReleaseTimeout(cfg.Credentials.ReleaseTimeout),
		provision.WithRetrier(retrier),
		provision.WithLogger(logger))

	eng := engine.New(
		engine.WithOptions(cfg.EngineOptions()),
		engine.WithPlanner(planner.New(cfg.PlannerOptions())),
		engine.WithRetrier(retrier),
		engine.WithMetrics(m),
		engine.WithLogger(logger))

	runner := session.NewRunner(manager, stores,
		session.WithEngine(eng),
		session.WithRetrier(retrier),
		session.WithTimeout(cfg.Session.Timeout),
		session.WithEventBuffer(cfg.Session.EventBuffer),
		session.WithEnsureDestinationBucket(cfg.Session.EnsureDestinationBucket),
		session.WithMetrics(m),
		session.WithLogger(logger))

	return &runtime{runner: runner, metrics: m, logger: logger}, nil
}

// newSTSProvisioner builds the S3 provisioner. Bucket policy edits and role
// creation are only enabled when configured.
func newSTSProvisioner(cr config.CredentialsConfig, api provision.STSAPI, roles provision.IAMAPI, policies provision.PolicyClientFunc, logger *slog.Logger) *provision.STSProvisioner {
	opts := []provision.STSOption{
		provision.WithDefaultRole(cr.DefaultRoleARN),
		provision.WithSessionDuration(cr.RoleSessionDuration),
		provision.WithSTSLogger(logger),
	}
	if cr.CrossAccountCopy {
		opts = append(opts, provision.WithBucketPolicyClients(policies))
	}
	if cr.CreateRoles {
		opts = append(opts, provision.WithRoleFactory(roles))
	}
	return provision.NewSTSProvisioner(api, opts...)
}

// serveMetrics exposes /metrics on addr until shutdown is called.
func (rt *runtime) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	rt.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := rt.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server stopped", "error", err)
		}
	}()
	rt.logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

func (rt *runtime) shutdown() {
	if rt.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = rt.server.Shutdown(ctx)
}
