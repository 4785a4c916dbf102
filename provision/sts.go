package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	terrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
)

// RevocationBucketPolicy marks a bucket policy statement added for a copy grant.
const RevocationBucketPolicy = "bucket-policy-statement"

// STSAPI is the subset of the STS client used by STSProvisioner.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// BucketPolicyAPI is the subset of the S3 client used to edit destination
// bucket policies for cross-account copies.
type BucketPolicyAPI interface {
	GetBucketPolicy(ctx context.Context, params *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error)
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
	DeleteBucketPolicy(ctx context.Context, params *s3.DeleteBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketPolicyOutput, error)
}

// PolicyClientFunc returns a client able to edit the bucket policy of dst,
// typically built from the destination account's base credentials.
type PolicyClientFunc func(ctx context.Context, dst domain.StorageAddress) (BucketPolicyAPI, error)

var (
	_ STSAPI          = (*sts.Client)(nil)
	_ BucketPolicyAPI = (*s3.Client)(nil)
)

// STSProvisioner issues grants by assuming a role with an inline session
// policy scoped to the target bucket and key or prefix.
type STSProvisioner struct {
	api         STSAPI
	roleARN     string
	duration    time.Duration
	policies    PolicyClientFunc
	roles       IAMAPI
	readyPolicy retry.Policy
	ready       *retry.Retrier
	logger      *slog.Logger
	sessionName func() string

	// policyLocks serialises edits to each destination bucket's policy.
	policyLocks keyedMutex
}

// STSOption configures an STSProvisioner.
type STSOption func(*STSProvisioner)

// WithDefaultRole sets the role assumed for addresses that do not name one.
func WithDefaultRole(arn string) STSOption {
	return func(p *STSProvisioner) {
		p.roleARN = arn
	}
}

// WithSessionDuration sets the requested role session duration.
func WithSessionDuration(d time.Duration) STSOption {
	return func(p *STSProvisioner) {
		p.duration = d
	}
}

// WithBucketPolicyClients enables cross-account copy grants. Each pair grant
// adds a statement to the destination bucket policy trusting the assumed role;
// release removes it.
func WithBucketPolicyClients(fn PolicyClientFunc) STSOption {
	return func(p *STSProvisioner) {
		p.policies = fn
	}
}

// WithSTSLogger configures the logger.
// If logger is nil, logging will be disabled.
func WithSTSLogger(logger *slog.Logger) STSOption {
	return func(p *STSProvisioner) {
		p.logger = logger
	}
}

// NewSTSProvisioner creates an STSProvisioner.
func NewSTSProvisioner(api STSAPI, opts ...STSOption) *STSProvisioner {
	p := &STSProvisioner{
		api:         api,
		duration:    time.Hour,
		readyPolicy: defaultRoleReadyPolicy(),
		sessionName: func() string {
			return "forge-transfer-" + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p.ready = retry.New(p.readyPolicy,
		retry.WithClassifier(classifyRoleReady),
		retry.WithLogger(p.logger))
	return p
}

// CrossAccountCopies reports whether copy grants edit destination bucket
// policies.
func (p *STSProvisioner) CrossAccountCopies() bool {
	return p.policies != nil
}

// CreatesRoles reports whether a role is created for grants naming none.
func (p *STSProvisioner) CreatesRoles() bool {
	return p.roles != nil
}

// Provision implements Provisioner.
func (p *STSProvisioner) Provision(ctx context.Context, target domain.StorageAddress, scope domain.AccessScope) (*domain.AccessGrant, error) {
	policy, err := SessionPolicy(target, scope)
	if err != nil {
		return nil, terrors.NewProvisionError(terrors.ProvisionMalformed, target.String(), err)
	}
	grant, _, err := p.issue(ctx, target, policy)
	if err != nil {
		return nil, err
	}
	grant.Scope = scope
	return grant, nil
}

// ProvisionCopy implements CopyProvisioner. The grant's target is dst.
func (p *STSProvisioner) ProvisionCopy(ctx context.Context, src, dst domain.StorageAddress) (*domain.AccessGrant, error) {
	policy, err := CopySessionPolicy(src, dst)
	if err != nil {
		return nil, terrors.NewProvisionError(terrors.ProvisionMalformed, dst.String(), err)
	}

	target := dst
	if target.RoleARN == "" {
		target.RoleARN = src.RoleARN
	}

	grant, roleARN, err := p.issue(ctx, target, policy)
	if err != nil {
		return nil, err
	}
	grant.Scope = domain.ScopeReadWrite

	if p.policies != nil {
		sid := strings.ReplaceAll(grant.ID, "-", "")
		if err := p.trustRole(ctx, dst, sid, roleARN); err != nil {
			if rerr := p.Release(context.WithoutCancel(ctx), grant); rerr != nil {
				p.logger.WarnContext(ctx, "failed to release grant after bucket policy update failed",
					"grant_id", grant.ID,
					"error", rerr)
			}
			return nil, err
		}
		grant.Revocations = append(grant.Revocations, domain.Revocation{
			Kind:   RevocationBucketPolicy,
			Bucket: dst.Bucket,
			ID:     sid,
		})
	}
	return grant, nil
}

// issue assumes the role for target, creating one first when the address
// names none and a role factory is configured. It returns the grant and the
// ARN of the role behind it.
func (p *STSProvisioner) issue(ctx context.Context, target domain.StorageAddress, policy string) (*domain.AccessGrant, string, error) {
	id := uuid.NewString()

	if target.RoleARN != "" || p.roles == nil {
		role := target.RoleARN
		if role == "" {
			role = p.roleARN
		}
		if role == "" {
			return nil, "", terrors.NewProvisionError(terrors.ProvisionUnauthorized, target.String(),
				errors.New("no role ARN configured"))
		}
		grant, err := p.assume(ctx, id, role, target, policy)
		return grant, role, err
	}

	name, role, err := p.createRole(ctx, id, policy)
	if err != nil {
		return nil, "", err
	}
	grant, err := p.assumeCreated(ctx, id, role, target, policy)
	if err != nil {
		p.discardRole(ctx, name, true)
		return nil, "", err
	}
	grant.Revocations = append(grant.Revocations, domain.Revocation{
		Kind: RevocationIAMRole,
		ID:   name,
	})
	return grant, role, nil
}

func (p *STSProvisioner) assume(ctx context.Context, id, role string, target domain.StorageAddress, policy string) (*domain.AccessGrant, error) {
	name := p.sessionName()
	p.logger.DebugContext(ctx, "assuming role",
		"role_arn", role,
		"session_name", name,
		"target", target.String())

	out, err := p.api.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(role),
		RoleSessionName: aws.String(name),
		Policy:          aws.String(policy),
		DurationSeconds: aws.Int32(int32(p.duration / time.Second)),
	})
	if err != nil {
		return nil, err
	}

	c := out.Credentials
	if c == nil || c.AccessKeyId == nil || c.SecretAccessKey == nil || c.SessionToken == nil || c.Expiration == nil {
		return nil, terrors.NewProvisionError(terrors.ProvisionMalformed, target.String(),
			errors.New("AssumeRole response is missing credentials"))
	}

	identity := role
	if out.AssumedRoleUser != nil && out.AssumedRoleUser.Arn != nil {
		identity = *out.AssumedRoleUser.Arn
	}

	return &domain.AccessGrant{
		ID: id,
		Credentials: domain.Credentials{
			AccessKeyID:     *c.AccessKeyId,
			SecretAccessKey: *c.SecretAccessKey,
			SessionToken:    *c.SessionToken,
		},
		Identity:   identity,
		Expiration: c.Expiration.UTC(),
		Target:     target,
	}, nil
}

func (p *STSProvisioner) trustRole(ctx context.Context, dst domain.StorageAddress, sid, roleARN string) error {
	client, err := p.policies(ctx, dst)
	if err != nil {
		return fmt.Errorf("bucket policy client for %s: %w", dst.Bucket, err)
	}

	unlock, err := p.policyLocks.lock(ctx, dst.Bucket)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := getBucketPolicy(ctx, client, dst.Bucket)
	if err != nil {
		return err
	}
	updated, err := AddStatement(current, Statement{
		Sid:       sid,
		Effect:    "Allow",
		Principal: map[string]string{"AWS": roleARN},
		Action:    writeActions,
		Resource:  []string{bucketARN(dst.Bucket), bucketARN(dst.Bucket) + "/*"},
	})
	if err != nil {
		return terrors.NewProvisionError(terrors.ProvisionMalformed, dst.String(), err)
	}

	p.logger.DebugContext(ctx, "adding bucket policy statement", "bucket", dst.Bucket, "sid", sid)
	_, err = client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(dst.Bucket),
		Policy: aws.String(updated),
	})
	return err
}

// Release implements Provisioner. Role sessions are left to expire. Bucket
// policy statements and roles created for the grant are removed, newest
// first.
func (p *STSProvisioner) Release(ctx context.Context, grant *domain.AccessGrant) error {
	if grant == nil {
		return nil
	}

	var errs []error
	for i := len(grant.Revocations) - 1; i >= 0; i-- {
		rev := grant.Revocations[i]
		switch rev.Kind {
		case RevocationBucketPolicy:
			if p.policies == nil {
				continue
			}
			if err := p.untrust(ctx, grant.Target, rev); err != nil {
				errs = append(errs, terrors.NewCleanupError("removeBucketPolicyStatement", rev.Bucket+"#"+rev.ID, err))
			}
		case RevocationIAMRole:
			if p.roles == nil {
				continue
			}
			if err := p.deleteRole(ctx, rev.ID); err != nil {
				errs = append(errs, terrors.NewCleanupError("deleteRole", rev.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (p *STSProvisioner) untrust(ctx context.Context, target domain.StorageAddress, rev domain.Revocation) error {
	target.Bucket = rev.Bucket
	client, err := p.policies(ctx, target)
	if err != nil {
		return err
	}

	unlock, err := p.policyLocks.lock(ctx, rev.Bucket)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := getBucketPolicy(ctx, client, rev.Bucket)
	if err != nil {
		return err
	}
	updated, remaining, err := RemoveStatement(current, rev.ID)
	if err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "removing bucket policy statement",
		"bucket", rev.Bucket,
		"sid", rev.ID,
		"remaining", remaining)

	if remaining == 0 {
		_, err = client.DeleteBucketPolicy(ctx, &s3.DeleteBucketPolicyInput{Bucket: aws.String(rev.Bucket)})
		return err
	}
	_, err = client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(rev.Bucket),
		Policy: aws.String(updated),
	})
	return err
}

// getBucketPolicy returns the bucket's policy, or "" when it has none.
func getBucketPolicy(ctx context.Context, client BucketPolicyAPI, bucket string) (string, error) {
	out, err := client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: aws.String(bucket)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucketPolicy" {
			return "", nil
		}
		return "", err
	}
	return aws.ToString(out.Policy), nil
}
