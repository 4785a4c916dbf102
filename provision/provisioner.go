// Package provision issues and releases short-lived, least-privilege access
// grants for storage locations.
//
// A Provisioner talks to one identity backend. The Manager wraps any
// Provisioner with the minimum-validity margin, the retry layer and the
// mapping of failures onto errors.ProvisionError. A Lease holds the grants of
// one session, re-provisions when the current grant is about to expire and
// releases everything exactly once.
package provision

import (
	"context"
	"fmt"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// Provisioner issues access grants for a storage location.
type Provisioner interface {
	// Provision returns a grant permitting scope on target.
	Provision(ctx context.Context, target domain.StorageAddress, scope domain.AccessScope) (*domain.AccessGrant, error)

	// Release revokes a grant and any remote side effects of issuing it.
	// It is best-effort; callers record failures and move on.
	Release(ctx context.Context, grant *domain.AccessGrant) error
}

// CopyProvisioner is implemented by provisioners that can issue one grant
// covering reads on src and writes on dst, which server-side copies need.
type CopyProvisioner interface {
	ProvisionCopy(ctx context.Context, src, dst domain.StorageAddress) (*domain.AccessGrant, error)
}

// Router dispatches to a Provisioner by provider type. Addresses naming a
// secret go to the secret provisioner when one is registered.
type Router struct {
	byType  map[domain.ProviderType]Provisioner
	secrets Provisioner
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{byType: make(map[domain.ProviderType]Provisioner)}
}

// Handle registers p for provider type t.
func (r *Router) Handle(t domain.ProviderType, p Provisioner) *Router {
	r.byType[t] = p
	return r
}

// HandleSecrets registers p for addresses that name a secret.
func (r *Router) HandleSecrets(p Provisioner) *Router {
	r.secrets = p
	return r
}

func (r *Router) route(addr domain.StorageAddress) (Provisioner, error) {
	if addr.SecretName != "" && addr.RoleARN == "" && r.secrets != nil {
		return r.secrets, nil
	}
	if p, ok := r.byType[addr.Type]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: no provisioner for %s", errors.ErrUnsupportedProvider, addr.Type)
}

// Provision implements Provisioner.
func (r *Router) Provision(ctx context.Context, target domain.StorageAddress, scope domain.AccessScope) (*domain.AccessGrant, error) {
	p, err := r.route(target)
	if err != nil {
		return nil, errors.NewProvisionError(errors.ProvisionMalformed, target.String(), err)
	}
	return p.Provision(ctx, target, scope)
}

// Release implements Provisioner, routing by the grant's target.
func (r *Router) Release(ctx context.Context, grant *domain.AccessGrant) error {
	if grant == nil {
		return nil
	}
	p, err := r.route(grant.Target)
	if err != nil {
		return err
	}
	return p.Release(ctx, grant)
}

// CopyCapable reports whether a pair grant can be issued for src and dst.
func (r *Router) CopyCapable(src, dst domain.StorageAddress) bool {
	ps, err := r.route(src)
	if err != nil {
		return false
	}
	pd, err := r.route(dst)
	if err != nil || ps != pd {
		return false
	}
	_, ok := ps.(CopyProvisioner)
	return ok
}

// ProvisionCopy implements CopyProvisioner when both addresses route to the
// same copy-capable provisioner.
func (r *Router) ProvisionCopy(ctx context.Context, src, dst domain.StorageAddress) (*domain.AccessGrant, error) {
	if !r.CopyCapable(src, dst) {
		return nil, errors.NewProvisionError(errors.ProvisionMalformed, dst.String(),
			fmt.Errorf("%w: no pair grant provisioner for %s -> %s", errors.ErrUnsupportedProvider, src.Type, dst.Type))
	}
	p, _ := r.route(src)
	return p.(CopyProvisioner).ProvisionCopy(ctx, src, dst)
}
