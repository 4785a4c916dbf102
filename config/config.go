// Package config holds the tunables of the transfer engine and loads them
// from a YAML file, FORGE_TRANSFER_ environment variables and command-line
// flags, in increasing order of precedence.
//
// Byte sizes are written the way humans write them ("8MiB", "64 MB") and
// durations use Go syntax ("30s", "1h").
//
//	cfg, err := config.Load("transfer.yaml", cmd.Flags())
//	if err != nil {
//	    return err
//	}
//	eng := engine.New(
//	    engine.WithOptions(cfg.EngineOptions()),
//	    engine.WithPlanner(planner.New(cfg.PlannerOptions())),
//	)
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/engine"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/provision"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
)

// Config is the complete configuration of a transfer process.
type Config struct {
	Transfer    TransferConfig
	Retry       RetryConfig
	Credentials CredentialsConfig
	Session     SessionConfig
	AWS         AWSConfig
	MinIO       MinIOConfig
	Log         LogConfig
	Metrics     MetricsConfig
}

// TransferConfig controls planning and the copy engine.
type TransferConfig struct {
	MultipartThreshold int64
	PartSize           int64
	BufferParts        int
	CopyPartSize       int64
	MaxSingleCopySize  int64
	Checksum           domain.ChecksumAlgorithm
	AbortTimeout       time.Duration
}

// RetryConfig controls the retry layer around every remote call.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
	Jitter      bool
}

// CredentialsConfig controls provisioning.
type CredentialsConfig struct {
	// MinValidity is the remaining lifetime below which a grant is replaced.
	MinValidity time.Duration

	// RoleSessionDuration is requested when assuming roles.
	RoleSessionDuration time.Duration

	DefaultRoleARN    string
	DefaultSecretName string
	ReleaseTimeout    time.Duration

	// SecretCacheTTL bounds how long secret-store tokens are cached. Zero
	// disables caching.
	SecretCacheTTL time.Duration

	// CrossAccountCopy lets copy grants add a statement trusting the copy
	// role to the destination bucket policy, removed again on release.
	CrossAccountCopy bool

	// CreateRoles creates a dedicated IAM role for every grant whose address
	// names no role, and deletes it on release.
	CreateRoles bool
}

// SessionConfig controls sessions.
type SessionConfig struct {
	// Timeout bounds a whole session. Zero means no bound.
	Timeout                 time.Duration
	EventBuffer             int
	EnsureDestinationBucket bool
}

// AWSConfig selects the AWS region and an optional S3-compatible endpoint.
type AWSConfig struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// MinIOConfig is the default endpoint for MinIO addresses that carry none.
type MinIOConfig struct {
	Endpoint string
	Region   string
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics. Empty disables it.
	Addr string
}

// Default returns the default configuration.
func Default() *Config {
	policy := retry.DefaultPolicy()
	return &Config{
		Transfer: TransferConfig{
			MultipartThreshold: planner.DefaultMultipartThreshold,
			PartSize:           planner.DefaultPartSize,
			BufferParts:        engine.DefaultBufferParts,
			CopyPartSize:       engine.DefaultCopyPartSize,
			MaxSingleCopySize:  engine.DefaultMaxSingleCopySize,
			Checksum:           domain.ChecksumSHA256,
			AbortTimeout:       engine.DefaultAbortTimeout,
		},
		Retry: RetryConfig{
			MaxAttempts: policy.MaxAttempts,
			BaseDelay:   policy.BaseDelay,
			MaxDelay:    policy.MaxDelay,
			CallTimeout: policy.CallTimeout,
			Jitter:      policy.Jitter,
		},
		Credentials: CredentialsConfig{
			MinValidity:         provision.DefaultMinValidity,
			RoleSessionDuration: time.Hour,
			ReleaseTimeout:      30 * time.Second,
			SecretCacheTTL:      5 * time.Minute,
		},
		Session: SessionConfig{
			EventBuffer: engine.DefaultEventBuffer,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports every out-of-range value at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	t := c.Transfer
	if t.PartSize < planner.MinPartSize {
		add("part size %s is below the minimum of %s", ibytes(t.PartSize), ibytes(planner.MinPartSize))
	}
	if t.MultipartThreshold < 0 {
		add("multipart threshold must not be negative")
	}
	if t.BufferParts < 1 {
		add("buffer parts must be at least 1, got %d", t.BufferParts)
	}
	if t.CopyPartSize < planner.MinPartSize {
		add("copy part size %s is below the minimum of %s", ibytes(t.CopyPartSize), ibytes(planner.MinPartSize))
	}
	if t.MaxSingleCopySize <= 0 {
		add("max single copy size must be positive")
	}
	switch t.Checksum {
	case domain.ChecksumSHA256, domain.ChecksumCRC32C:
	default:
		add("unknown checksum algorithm %q (want SHA256 or CRC32C)", t.Checksum)
	}

	r := c.Retry
	if r.MaxAttempts < 1 {
		add("retry max attempts must be at least 1, got %d", r.MaxAttempts)
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 || r.CallTimeout < 0 {
		add("retry delays and timeouts must not be negative")
	}
	if r.MaxDelay > 0 && r.BaseDelay > r.MaxDelay {
		add("retry base delay %s exceeds max delay %s", r.BaseDelay, r.MaxDelay)
	}

	cr := c.Credentials
	if cr.MinValidity < 0 {
		add("minimum validity must not be negative")
	}
	if cr.RoleSessionDuration < 15*time.Minute || cr.RoleSessionDuration > 12*time.Hour {
		add("role session duration %s is outside 15m..12h", cr.RoleSessionDuration)
	}
	if cr.RoleSessionDuration <= cr.MinValidity {
		add("role session duration %s does not exceed the minimum validity %s", cr.RoleSessionDuration, cr.MinValidity)
	}

	if c.Session.Timeout < 0 {
		add("session timeout must not be negative")
	}
	if c.Session.EventBuffer < 1 {
		add("event buffer must be at least 1, got %d", c.Session.EventBuffer)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		add("%v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("unknown log format %q (want text or json)", c.Log.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// PlannerOptions returns the planner tunables.
func (c *Config) PlannerOptions() planner.Options {
	return planner.Options{
		MultipartThreshold: c.Transfer.MultipartThreshold,
		PartSize:           c.Transfer.PartSize,
		Checksum:           c.Transfer.Checksum,
	}
}

// EngineOptions returns the copy engine tunables.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		BufferParts:       c.Transfer.BufferParts,
		CopyPartSize:      c.Transfer.CopyPartSize,
		MaxSingleCopySize: c.Transfer.MaxSingleCopySize,
		AbortTimeout:      c.Transfer.AbortTimeout,
	}
}

// RetryPolicy returns the retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		CallTimeout: c.Retry.CallTimeout,
		Jitter:      c.Retry.Jitter,
	}
}

func ibytes(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%d B", n)
	}
	return humanize.IBytes(uint64(n))
}
