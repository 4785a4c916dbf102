package provision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/services/aws/secrets"
)

func TestRouter(t *testing.T) {
	stsAPI := &mockSTSClient{AssumeRoleFunc: assumeRoleOK(time.Now().Add(time.Hour))}
	stsProv := NewSTSProvisioner(stsAPI, WithDefaultRole("arn:aws:iam::1:role/r"))
	secretProv := NewSecretProvisioner(&mockTokenReader{tokens: map[string]*secrets.Token{
		"minio-creds": {AccessKeyID: "minio", SecretAccessKey: "minio123"},
	}}, "")

	r := NewRouter().
		Handle(domain.ProviderS3, stsProv).
		Handle(domain.ProviderMinIO, secretProv).
		Handle(domain.ProviderFile, LocalProvisioner{}).
		HandleSecrets(secretProv)

	ctx := context.Background()

	g, err := r.Provision(ctx, domain.StorageAddress{Type: domain.ProviderS3, Bucket: "b-1"}, domain.ScopeRead)
	require.NoError(t, err)
	assert.Equal(t, "ASIATEST", g.Credentials.AccessKeyID)

	g, err = r.Provision(ctx, domain.StorageAddress{Type: domain.ProviderS3, Bucket: "b-1", SecretName: "minio-creds"}, domain.ScopeRead)
	require.NoError(t, err)
	assert.Equal(t, "minio", g.Credentials.AccessKeyID)
	assert.False(t, g.Expires())

	g, err = r.Provision(ctx, domain.StorageAddress{Type: domain.ProviderFile, Bucket: "/data"}, domain.ScopeWrite)
	require.NoError(t, err)
	assert.Empty(t, g.Credentials.AccessKeyID)
	require.NoError(t, r.Release(ctx, g))

	_, err = NewRouter().Provision(ctx, domain.StorageAddress{Type: domain.ProviderS3, Bucket: "b-1"}, domain.ScopeRead)
	assert.ErrorIs(t, err, errors.ErrUnsupportedProvider)

	s3a := domain.StorageAddress{Type: domain.ProviderS3, Bucket: "a-1"}
	s3b := domain.StorageAddress{Type: domain.ProviderS3, Bucket: "b-1"}
	minio := domain.StorageAddress{Type: domain.ProviderMinIO, Bucket: "b-1"}
	assert.True(t, r.CopyCapable(s3a, s3b))
	assert.False(t, r.CopyCapable(s3a, minio))
	assert.False(t, r.CopyCapable(minio, minio))

	_, err = r.ProvisionCopy(ctx, s3a, s3b)
	require.NoError(t, err)
	_, err = r.ProvisionCopy(ctx, s3a, minio)
	assert.ErrorIs(t, err, errors.ErrUnsupportedProvider)
}

func TestSecretProvisioner(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	reader := &mockTokenReader{tokens: map[string]*secrets.Token{
		"default": {AccessKeyID: "a", SecretAccessKey: "b", SessionToken: "c", Expiration: exp},
	}}

	p := NewSecretProvisioner(reader, "default")
	g, err := p.Provision(context.Background(), domain.StorageAddress{Type: domain.ProviderMinIO, Bucket: "b-1"}, domain.ScopeRead)
	require.NoError(t, err)
	assert.Equal(t, exp, g.Expiration)
	assert.Equal(t, "secret:default", g.Identity)
	assert.NoError(t, p.Release(context.Background(), g))

	_, err = NewSecretProvisioner(reader, "").Provision(context.Background(), domain.StorageAddress{Type: domain.ProviderMinIO, Bucket: "b-1"}, domain.ScopeRead)
	var pe *errors.ProvisionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, errors.ProvisionUnauthorized, pe.Kind)

	bad := NewSecretProvisioner(&mockTokenReader{err: secrets.ErrMalformedToken}, "x")
	_, err = bad.Provision(context.Background(), domain.StorageAddress{Type: domain.ProviderMinIO, Bucket: "b-1"}, domain.ScopeRead)
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, errors.ProvisionMalformed, pe.Kind)
}
