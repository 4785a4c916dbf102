package provision

import (
	"context"

	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
)

// LocalProvisioner issues non-expiring, credential-free grants for
// filesystem locations. Access is governed by the process's own permissions.
type LocalProvisioner struct{}

// Provision implements Provisioner.
func (LocalProvisioner) Provision(_ context.Context, target domain.StorageAddress, scope domain.AccessScope) (*domain.AccessGrant, error) {
	return &domain.AccessGrant{
		ID:       uuid.NewString(),
		Identity: "local",
		Scope:    scope,
		Target:   target,
	}, nil
}

// Release implements Provisioner. There is nothing to revoke.
func (LocalProvisioner) Release(context.Context, *domain.AccessGrant) error {
	return nil
}
