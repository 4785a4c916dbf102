package provision

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/services/aws/secrets"
)

// TokenReader reads credential tokens from a secret store.
// *secrets.Client satisfies it.
type TokenReader interface {
	GetToken(ctx context.Context, secretName string) (*secrets.Token, error)
}

// SecretProvisioner issues grants from credentials held in a secret store.
// The grant expires with the stored token; long-lived key pairs never expire.
type SecretProvisioner struct {
	tokens      TokenReader
	defaultName string
}

// NewSecretProvisioner creates a SecretProvisioner. defaultName is used for
// addresses that do not name a secret.
func NewSecretProvisioner(tokens TokenReader, defaultName string) *SecretProvisioner {
	return &SecretProvisioner{tokens: tokens, defaultName: defaultName}
}

// Provision implements Provisioner.
func (p *SecretProvisioner) Provision(ctx context.Context, target domain.StorageAddress, scope domain.AccessScope) (*domain.AccessGrant, error) {
	name := target.SecretName
	if name == "" {
		name = p.defaultName
	}
	if name == "" {
		return nil, errors.NewProvisionError(errors.ProvisionUnauthorized, target.String(),
			fmt.Errorf("no secret configured for %s", target.Bucket))
	}

	tok, err := p.tokens.GetToken(ctx, name)
	if err != nil {
		if errors.Is(err, secrets.ErrMalformedToken) || errors.Is(err, secrets.ErrSecretEmpty) {
			return nil, errors.NewProvisionError(errors.ProvisionMalformed, target.String(), err)
		}
		return nil, err
	}

	return &domain.AccessGrant{
		ID: uuid.NewString(),
		Credentials: domain.Credentials{
			AccessKeyID:     tok.AccessKeyID,
			SecretAccessKey: tok.SecretAccessKey,
			SessionToken:    tok.SessionToken,
		},
		Identity:   "secret:" + name,
		Expiration: tok.Expiration,
		Scope:      scope,
		Target:     target,
	}, nil
}

// Release implements Provisioner. Stored credentials are not revoked.
func (p *SecretProvisioner) Release(context.Context, *domain.AccessGrant) error {
	return nil
}
