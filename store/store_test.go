package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

func TestRegistry_Open(t *testing.T) {
	var opened domain.StorageAddress
	r := NewRegistry().Register(domain.ProviderFile, FactoryFunc(
		func(_ context.Context, addr domain.StorageAddress, _ Credentials) (Endpoint, error) {
			opened = addr
			return nil, nil
		}))

	addr := domain.StorageAddress{Type: domain.ProviderFile, Bucket: "/tmp"}
	_, err := r.Open(context.Background(), addr, StaticCredentials{})
	require.NoError(t, err)
	assert.Equal(t, addr, opened)

	_, err = r.Open(context.Background(), domain.StorageAddress{Type: domain.ProviderS3}, StaticCredentials{})
	assert.ErrorIs(t, err, errors.ErrUnsupportedProvider)
}

func TestStaticCredentials(t *testing.T) {
	g, err := StaticCredentials{}.Grant(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, g)

	want := &domain.AccessGrant{ID: "x"}
	g, err = StaticCredentials{AccessGrant: want}.Grant(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, g)
}
