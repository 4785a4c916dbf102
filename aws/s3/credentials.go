package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// grantProvider adapts store.Credentials to the SDK credentials interface.
type grantProvider struct {
	creds store.Credentials
}

// Retrieve returns the keys of the current grant.
func (p grantProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	g, err := p.creds.Grant(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}
	c := aws.Credentials{
		AccessKeyID:     g.Credentials.AccessKeyID,
		SecretAccessKey: g.Credentials.SecretAccessKey,
		SessionToken:    g.Credentials.SessionToken,
		Source:          "ForgeTransferGrant",
	}
	if g.Expires() {
		c.CanExpire = true
		c.Expires = g.Expiration
	}
	return c, nil
}

// providerFor returns the SDK provider for creds. Providers that already
// speak the SDK interface, like a provisioning lease, are used as they are
// so their own expiry margin applies. A grant without keys falls back to
// the base configuration's provider, or to anonymous access, and a grant
// that never expires is served as static keys.
func providerFor(ctx context.Context, creds store.Credentials, fallback aws.CredentialsProvider) (aws.CredentialsProvider, error) {
	if p, ok := creds.(aws.CredentialsProvider); ok {
		return aws.NewCredentialsCache(p), nil
	}

	g, err := creds.Grant(ctx)
	if err != nil {
		return nil, err
	}
	if g.Credentials.AccessKeyID == "" {
		if fallback != nil {
			return fallback, nil
		}
		return aws.AnonymousCredentials{}, nil
	}
	if !g.Expires() {
		return credentials.NewStaticCredentialsProvider(
			g.Credentials.AccessKeyID, g.Credentials.SecretAccessKey, g.Credentials.SessionToken), nil
	}
	return aws.NewCredentialsCache(grantProvider{creds: creds}), nil
}
