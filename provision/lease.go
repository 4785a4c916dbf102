package provision

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// Lease holds the grants of one session for one location, or for a
// source/destination pair. It is safe for concurrent use.
type Lease struct {
	m     *Manager
	name  string
	issue func(context.Context) (*domain.AccessGrant, error)

	mu       sync.Mutex
	current  *domain.AccessGrant
	issued   []*domain.AccessGrant
	released bool
}

// Lease creates a lease for scope on target. No grant is issued until Grant
// is called.
func (m *Manager) Lease(target domain.StorageAddress, scope domain.AccessScope) *Lease {
	return &Lease{
		m:    m,
		name: target.String(),
		issue: func(ctx context.Context) (*domain.AccessGrant, error) {
			return m.Provision(ctx, target, scope)
		},
	}
}

// CopyLease creates a lease whose grants cover reads on src and writes on dst.
func (m *Manager) CopyLease(src, dst domain.StorageAddress) *Lease {
	return &Lease{
		m:    m,
		name: src.String() + " -> " + dst.String(),
		issue: func(ctx context.Context) (*domain.AccessGrant, error) {
			return m.ProvisionCopy(ctx, src, dst)
		},
	}
}

// Grant returns a grant with at least the minimum validity left, issuing a
// new one when the current grant is missing or about to expire.
func (l *Lease) Grant(ctx context.Context) (*domain.AccessGrant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil, fmt.Errorf("%w: lease for %s already released", errors.ErrGrantExpired, l.name)
	}
	if l.current != nil && l.current.ValidFor(l.m.clock.Now(), l.m.margin) {
		return l.current, nil
	}
	if l.current != nil {
		l.m.logger.InfoContext(ctx, "re-provisioning grant near expiry",
			"target", l.name,
			"grant_id", l.current.ID,
			"remaining", l.current.Remaining(l.m.clock.Now()))
	}

	g, err := l.issue(ctx)
	if err != nil {
		return nil, err
	}
	l.current = g
	l.issued = append(l.issued, g)
	return g, nil
}

// Issued returns how many grants the lease has obtained.
func (l *Lease) Issued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.issued)
}

// Release releases every grant the lease issued. Only the first call does
// any work; later calls return nil. Failures are returned as CleanupErrors.
func (l *Lease) Release(ctx context.Context) []error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	grants := l.issued
	l.current = nil
	l.mu.Unlock()

	var errs []error
	for _, g := range grants {
		if err := l.m.Release(ctx, g); err != nil {
			l.m.logger.WarnContext(ctx, "grant release failed", "target", l.name, "grant_id", g.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errs
}

// Retrieve implements aws.CredentialsProvider. The reported expiry is pulled
// forward by the minimum validity margin so SDK credential caches come back
// to the lease before the grant becomes unusable.
func (l *Lease) Retrieve(ctx context.Context) (aws.Credentials, error) {
	g, err := l.Grant(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}
	creds := aws.Credentials{
		AccessKeyID:     g.Credentials.AccessKeyID,
		SecretAccessKey: g.Credentials.SecretAccessKey,
		SessionToken:    g.Credentials.SessionToken,
		Source:          "ForgeTransferLease",
	}
	if g.Expires() {
		creds.CanExpire = true
		creds.Expires = g.Expiration.Add(-l.m.margin)
	}
	return creds, nil
}

var _ aws.CredentialsProvider = (*Lease)(nil)
