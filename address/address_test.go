package address

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    domain.StorageAddress
		wantErr error
	}{
		{
			name: "s3 object",
			raw:  "s3://source-bucket/data/file.bin",
			want: domain.StorageAddress{Type: domain.ProviderS3, Bucket: "source-bucket", Key: "data/file.bin"},
		},
		{
			name: "s3 prefix",
			raw:  "s3://source-bucket/data/",
			want: domain.StorageAddress{Type: domain.ProviderS3, Bucket: "source-bucket", Prefix: "data/"},
		},
		{
			name: "s3 bucket only",
			raw:  "s3://source-bucket",
			want: domain.StorageAddress{Type: domain.ProviderS3, Bucket: "source-bucket"},
		},
		{
			name: "s3 with query options",
			raw:  "s3://dest-bucket/out.bin?region=eu-west-1&folder=incoming&role=arn:aws:iam::123456789012:role/xfer",
			want: domain.StorageAddress{
				Type:    domain.ProviderS3,
				Bucket:  "dest-bucket",
				Key:     "out.bin",
				Region:  "eu-west-1",
				Folder:  "incoming",
				RoleARN: "arn:aws:iam::123456789012:role/xfer",
			},
		},
		{
			name: "minio",
			raw:  "minio://localhost:9000/media/video.mp4",
			want: domain.StorageAddress{Type: domain.ProviderMinIO, Endpoint: "localhost:9000", Bucket: "media", Key: "video.mp4"},
		},
		{
			name: "file",
			raw:  "file:///var/data/report.csv",
			want: domain.StorageAddress{Type: domain.ProviderFile, Bucket: "/var/data", Key: "report.csv"},
		},
		{
			name: "file directory",
			raw:  "file:///var/data/",
			want: domain.StorageAddress{Type: domain.ProviderFile, Bucket: "/var/data"},
		},
		{name: "unknown scheme", raw: "gs://bucket/key", wantErr: errors.ErrUnsupportedProvider},
		{name: "bad bucket", raw: "s3://Bad_Bucket/key", wantErr: errors.ErrInvalidAddress},
		{name: "traversal", raw: "s3://good-bucket/a/../../etc", wantErr: errors.ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDestinationKey(t *testing.T) {
	tests := []struct {
		name      string
		dst       domain.StorageAddress
		sourceKey string
		single    bool
		want      string
	}{
		{name: "no folder", dst: domain.StorageAddress{}, sourceKey: "a/b.txt", want: "a/b.txt"},
		{name: "folder without slash", dst: domain.StorageAddress{Folder: "incoming"}, sourceKey: "b.txt", want: "incoming/b.txt"},
		{name: "folder with slash", dst: domain.StorageAddress{Folder: "incoming/"}, sourceKey: "b.txt", want: "incoming/b.txt"},
		{name: "explicit key single", dst: domain.StorageAddress{Key: "renamed.txt"}, sourceKey: "b.txt", single: true, want: "renamed.txt"},
		{name: "explicit key ignored for prefix", dst: domain.StorageAddress{Key: "renamed.txt"}, sourceKey: "b.txt", want: "b.txt"},
		{name: "prefix and folder", dst: domain.StorageAddress{Prefix: "copies/", Folder: "f"}, sourceKey: "x/y", want: "f/copies/x/y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DestinationKey(tt.dst, tt.sourceKey, tt.single))
		})
	}
}

func TestSameDomain(t *testing.T) {
	s3a := domain.StorageAddress{Type: domain.ProviderS3, Bucket: "a"}
	s3b := domain.StorageAddress{Type: domain.ProviderS3, Bucket: "b"}
	local := domain.StorageAddress{Type: domain.ProviderS3, Bucket: "b", Endpoint: "http://localhost:4566"}
	minio := domain.StorageAddress{Type: domain.ProviderMinIO, Bucket: "b"}
	file := domain.StorageAddress{Type: domain.ProviderFile, Bucket: "/tmp"}

	assert.True(t, SameDomain(s3a, s3b))
	assert.False(t, SameDomain(s3a, local))
	assert.True(t, SameDomain(local, local))
	assert.False(t, SameDomain(s3a, minio))
	assert.False(t, SameDomain(file, file))
}

func TestValidateBucketName(t *testing.T) {
	tests := []struct {
		name    string
		bucket  string
		wantErr string
	}{
		{"valid_simple", "my-bucket", ""},
		{"valid_with_dots", "my.bucket", ""},
		{"valid_leading_digit", "123data", ""},
		{"valid_max_length", strings.Repeat("a", 63), ""},
		{"empty", "", "cannot be empty"},
		{"too_short", "ab", "between 3 and 63"},
		{"too_long", strings.Repeat("a", 64), "between 3 and 63"},
		{"uppercase", "MyBucket", "lowercase"},
		{"trailing_dot", "bucket.", "start or end"},
		{"ip", "192.168.1.1", "IP address"},
		{"adjacent_dots", "my..bucket", "adjacent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucketName(tt.bucket)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidAddress)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateObjectKey(t *testing.T) {
	assert.NoError(t, ValidateObjectKey("dir/file..name.txt"))
	assert.Error(t, ValidateObjectKey(""))
	assert.Error(t, ValidateObjectKey("../secret"))
	assert.Error(t, ValidateObjectKey("/abs"))
	assert.Error(t, ValidateObjectKey("a\x00b"))
	assert.Error(t, ValidateObjectKey(strings.Repeat("k", 1025)))
}
