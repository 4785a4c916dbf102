package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/planner"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, planner.DefaultOptions(), cfg.PlannerOptions())
	assert.Equal(t, 4, cfg.RetryPolicy().MaxAttempts)
	assert.Equal(t, 64, cfg.Session.EventBuffer)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "part size below minimum",
			mutate: func(c *Config) { c.Transfer.PartSize = 1024 },
			want:   "part size 1.0 KiB is below the minimum of 5.0 MiB",
		},
		{
			name:   "unknown checksum",
			mutate: func(c *Config) { c.Transfer.Checksum = "MD5" },
			want:   `unknown checksum algorithm "MD5"`,
		},
		{
			name:   "zero attempts",
			mutate: func(c *Config) { c.Retry.MaxAttempts = 0 },
			want:   "retry max attempts must be at least 1",
		},
		{
			name:   "base above max delay",
			mutate: func(c *Config) { c.Retry.BaseDelay = time.Minute },
			want:   "retry base delay 1m0s exceeds max delay 5s",
		},
		{
			name:   "role session too short",
			mutate: func(c *Config) { c.Credentials.RoleSessionDuration = time.Minute },
			want:   "role session duration 1m0s is outside 15m..12h",
		},
		{
			name:   "unknown log format",
			mutate: func(c *Config) { c.Log.Format = "xml" },
			want:   `unknown log format "xml"`,
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.Log.Level = "loud" },
			want:   `unknown log level "loud"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, errors.CodeInvalidConfig, errors.CodeOf(err))
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Transfer.BufferParts = 0
	cfg.Session.EventBuffer = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buffer parts must be at least 1")
	assert.Contains(t, err.Error(), "event buffer must be at least 1")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transfer:
  part-size: 16MiB
  multipart-threshold: 32 MB
  checksum: crc32c
retry:
  max-attempts: 6
  base-delay: 100ms
aws:
  region: eu-west-1
session:
  timeout: 2h
`), 0o600))

	t.Setenv("FORGE_TRANSFER_AWS_REGION", "eu-central-1")
	t.Setenv("FORGE_TRANSFER_RETRY_MAX_ATTEMPTS", "5")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--retry-max-attempts=7", "--log-format=json"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, int64(16*1024*1024), cfg.Transfer.PartSize)
	assert.Equal(t, int64(32_000_000), cfg.Transfer.MultipartThreshold)
	assert.Equal(t, domain.ChecksumCRC32C, cfg.Transfer.Checksum)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 2*time.Hour, cfg.Session.Timeout)
	assert.Equal(t, "eu-central-1", cfg.AWS.Region, "env overrides file")
	assert.Equal(t, 7, cfg.Retry.MaxAttempts, "flag overrides env")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, Default().Transfer.CopyPartSize, cfg.Transfer.CopyPartSize)
}

func TestLoad_CredentialSwitches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
credentials:
  cross-account-copy: true
`), 0o600))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	assert.Equal(t, "false", fs.Lookup("create-roles").DefValue)
	require.NoError(t, fs.Parse([]string{"--create-roles"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.True(t, cfg.Credentials.CrossAccountCopy)
	assert.True(t, cfg.Credentials.CreateRoles)

	def := Default()
	assert.False(t, def.Credentials.CrossAccountCopy)
	assert.False(t, def.Credentials.CreateRoles)
}

func TestLoad_RejectsBadSizes(t *testing.T) {
	t.Setenv("FORGE_TRANSFER_TRANSFER_PART_SIZE", "lots")

	_, err := Load("", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Contains(t, err.Error(), `transfer.part-size: "lots" is not a byte size`)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestRegisterFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)

	for _, s := range settings {
		assert.NotNil(t, fs.Lookup(s.flag), s.flag)
	}
	f := fs.Lookup("part-size")
	require.NotNil(t, f)
	assert.Equal(t, "8.0 MiB", f.DefValue)
	assert.Equal(t, "30s", fs.Lookup("abort-timeout").DefValue)
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}
