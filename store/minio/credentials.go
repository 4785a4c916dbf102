package minio

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// grantProvider adapts store.Credentials to minio-go. It reports itself
// expired on every request so the grant is looked up at time of use; a
// provisioning lease caches the grant and re-provisions near expiry.
type grantProvider struct {
	creds   store.Credentials
	timeout time.Duration
}

var _ credentials.Provider = (*grantProvider)(nil)

// Retrieve returns the keys of the current grant, or anonymous access when
// the grant carries none.
func (p *grantProvider) Retrieve() (credentials.Value, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	g, err := p.creds.Grant(ctx)
	if err != nil {
		return credentials.Value{}, err
	}
	if g.Credentials.AccessKeyID == "" {
		return credentials.Value{SignerType: credentials.SignatureAnonymous}, nil
	}
	return credentials.Value{
		AccessKeyID:     g.Credentials.AccessKeyID,
		SecretAccessKey: g.Credentials.SecretAccessKey,
		SessionToken:    g.Credentials.SessionToken,
		SignerType:      credentials.SignatureV4,
	}, nil
}

// RetrieveWithCredContext implements credentials.Provider.
func (p *grantProvider) RetrieveWithCredContext(*credentials.CredContext) (credentials.Value, error) {
	return p.Retrieve()
}

// IsExpired implements credentials.Provider.
func (p *grantProvider) IsExpired() bool {
	return true
}
