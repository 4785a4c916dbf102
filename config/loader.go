package config

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// EnvPrefix prefixes every environment variable, e.g.
// FORGE_TRANSFER_TRANSFER_PART_SIZE or FORGE_TRANSFER_AWS_REGION.
const EnvPrefix = "FORGE_TRANSFER"

// setting ties a configuration key to its command-line flag.
type setting struct {
	key   string
	flag  string
	usage string
}

var settings = []setting{
	{"transfer.multipart-threshold", "multipart-threshold", "size above which streamed objects use multipart uploads"},
	{"transfer.part-size", "part-size", "multipart part size"},
	{"transfer.buffer-parts", "buffer-parts", "parts read ahead of the uploader"},
	{"transfer.copy-part-size", "copy-part-size", "range size of server-side part copies"},
	{"transfer.max-single-copy-size", "max-single-copy-size", "largest object copied with a single server-side call"},
	{"transfer.checksum", "checksum", "content checksum algorithm (SHA256 or CRC32C)"},
	{"transfer.abort-timeout", "abort-timeout", "time allowed to abort a failed multipart upload"},
	{"retry.max-attempts", "retry-max-attempts", "attempts per remote call, including the first"},
	{"retry.base-delay", "retry-base-delay", "delay before the first retry"},
	{"retry.max-delay", "retry-max-delay", "cap on the delay between retries"},
	{"retry.call-timeout", "call-timeout", "timeout of each remote call attempt"},
	{"retry.jitter", "retry-jitter", "randomize retry delays"},
	{"credentials.min-validity", "min-validity", "remaining grant lifetime below which credentials are re-provisioned"},
	{"credentials.role-session-duration", "role-session-duration", "requested duration of assumed role sessions"},
	{"credentials.default-role-arn", "role-arn", "role assumed for addresses that name none"},
	{"credentials.default-secret-name", "secret-name", "secret holding base credentials for addresses that name none"},
	{"credentials.release-timeout", "release-timeout", "time allowed to release a grant"},
	{"credentials.secret-cache-ttl", "secret-cache-ttl", "how long secret-store tokens are cached"},
	{"credentials.cross-account-copy", "cross-account-copy", "trust the copy role in destination bucket policies"},
	{"credentials.create-roles", "create-roles", "create a temporary IAM role per grant when none is named"},
	{"session.timeout", "session-timeout", "bound on a whole session (0 disables)"},
	{"session.event-buffer", "event-buffer", "capacity of the progress event channel"},
	{"session.ensure-destination-bucket", "ensure-bucket", "create the destination bucket when missing"},
	{"aws.region", "region", "default AWS region"},
	{"aws.endpoint", "endpoint", "S3-compatible endpoint override"},
	{"aws.path-style", "path-style", "use path-style S3 addressing"},
	{"minio.endpoint", "minio-endpoint", "default endpoint for MinIO addresses"},
	{"minio.region", "minio-region", "region reported to MinIO"},
	{"log.level", "log-level", "log level (debug, info, warn, error)"},
	{"log.format", "log-format", "log format (text or json)"},
	{"metrics.addr", "metrics-addr", "listen address of the Prometheus endpoint (empty disables)"},
}

// defaults flattens Default into viper keys.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"transfer.multipart-threshold":      ibytes(d.Transfer.MultipartThreshold),
		"transfer.part-size":                ibytes(d.Transfer.PartSize),
		"transfer.buffer-parts":             d.Transfer.BufferParts,
		"transfer.copy-part-size":           ibytes(d.Transfer.CopyPartSize),
		"transfer.max-single-copy-size":     ibytes(d.Transfer.MaxSingleCopySize),
		"transfer.checksum":                 string(d.Transfer.Checksum),
		"transfer.abort-timeout":            d.Transfer.AbortTimeout,
		"retry.max-attempts":                d.Retry.MaxAttempts,
		"retry.base-delay":                  d.Retry.BaseDelay,
		"retry.max-delay":                   d.Retry.MaxDelay,
		"retry.call-timeout":                d.Retry.CallTimeout,
		"retry.jitter":                      d.Retry.Jitter,
		"credentials.min-validity":          d.Credentials.MinValidity,
		"credentials.role-session-duration": d.Credentials.RoleSessionDuration,
		"credentials.default-role-arn":      d.Credentials.DefaultRoleARN,
		"credentials.default-secret-name":   d.Credentials.DefaultSecretName,
		"credentials.release-timeout":       d.Credentials.ReleaseTimeout,
		"credentials.secret-cache-ttl":      d.Credentials.SecretCacheTTL,
		"credentials.cross-account-copy":    d.Credentials.CrossAccountCopy,
		"credentials.create-roles":          d.Credentials.CreateRoles,
		"session.timeout":                   d.Session.Timeout,
		"session.event-buffer":              d.Session.EventBuffer,
		"session.ensure-destination-bucket": d.Session.EnsureDestinationBucket,
		"aws.region":                        d.AWS.Region,
		"aws.endpoint":                      d.AWS.Endpoint,
		"aws.path-style":                    d.AWS.PathStyle,
		"minio.endpoint":                    d.MinIO.Endpoint,
		"minio.region":                      d.MinIO.Region,
		"log.level":                         d.Log.Level,
		"log.format":                        d.Log.Format,
		"metrics.addr":                      d.Metrics.Addr,
	}
}

// RegisterFlags adds a flag for every setting to fs. Flag defaults mirror
// Default so help output shows the effective values.
func RegisterFlags(fs *pflag.FlagSet) {
	d := defaults()
	for _, s := range settings {
		if fs.Lookup(s.flag) != nil {
			continue
		}
		switch v := d[s.key].(type) {
		case bool:
			fs.Bool(s.flag, v, s.usage)
		case int:
			fs.Int(s.flag, v, s.usage)
		case fmt.Stringer:
			fs.String(s.flag, v.String(), s.usage)
		default:
			fs.String(s.flag, fmt.Sprint(v), s.usage)
		}
	}
}

// Load reads the configuration. path names an optional YAML file; flags,
// when non-nil, is a flag set populated by RegisterFlags. The result is
// validated.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for _, s := range settings {
			if f := flags.Lookup(s.flag); f != nil {
				if err := v.BindPFlag(s.key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", s.flag, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var problems []string
	size := func(key string) int64 {
		raw := strings.TrimSpace(v.GetString(key))
		n, err := humanize.ParseBytes(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %q is not a byte size", key, raw))
			return 0
		}
		return int64(n)
	}

	cfg := &Config{
		Transfer: TransferConfig{
			MultipartThreshold: size("transfer.multipart-threshold"),
			PartSize:           size("transfer.part-size"),
			BufferParts:        v.GetInt("transfer.buffer-parts"),
			CopyPartSize:       size("transfer.copy-part-size"),
			MaxSingleCopySize:  size("transfer.max-single-copy-size"),
			Checksum:           domain.ChecksumAlgorithm(strings.ToUpper(strings.TrimSpace(v.GetString("transfer.checksum")))),
			AbortTimeout:       v.GetDuration("transfer.abort-timeout"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("retry.max-attempts"),
			BaseDelay:   v.GetDuration("retry.base-delay"),
			MaxDelay:    v.GetDuration("retry.max-delay"),
			CallTimeout: v.GetDuration("retry.call-timeout"),
			Jitter:      v.GetBool("retry.jitter"),
		},
		Credentials: CredentialsConfig{
			MinValidity:         v.GetDuration("credentials.min-validity"),
			RoleSessionDuration: v.GetDuration("credentials.role-session-duration"),
			DefaultRoleARN:      v.GetString("credentials.default-role-arn"),
			DefaultSecretName:   v.GetString("credentials.default-secret-name"),
			ReleaseTimeout:      v.GetDuration("credentials.release-timeout"),
			SecretCacheTTL:      v.GetDuration("credentials.secret-cache-ttl"),
			CrossAccountCopy:    v.GetBool("credentials.cross-account-copy"),
			CreateRoles:         v.GetBool("credentials.create-roles"),
		},
		Session: SessionConfig{
			Timeout:                 v.GetDuration("session.timeout"),
			EventBuffer:             v.GetInt("session.event-buffer"),
			EnsureDestinationBucket: v.GetBool("session.ensure-destination-bucket"),
		},
		AWS: AWSConfig{
			Region:    v.GetString("aws.region"),
			Endpoint:  v.GetString("aws.endpoint"),
			PathStyle: v.GetBool("aws.path-style"),
		},
		MinIO: MinIOConfig{
			Endpoint: v.GetString("minio.endpoint"),
			Region:   v.GetString("minio.region"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return cfg, nil
}
