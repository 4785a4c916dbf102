package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
)

// RevocationIAMRole marks a role created for a single grant.
const RevocationIAMRole = "iam-role"

const (
	rolePrefix   = "forge-transfer-"
	roleGrantTag = "forge-transfer:grant"

	minRoleSession = time.Hour
	maxRoleSession = 12 * time.Hour
)

// IAMAPI is the subset of the IAM client used to create a role per grant.
type IAMAPI interface {
	GetUser(ctx context.Context, params *iam.GetUserInput, optFns ...func(*iam.Options)) (*iam.GetUserOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
	DeleteRolePolicy(ctx context.Context, params *iam.DeleteRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error)
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
}

var _ IAMAPI = (*iam.Client)(nil)

// WithRoleFactory makes the provisioner create a dedicated role for every
// grant whose address names no role. The role trusts the calling IAM user,
// carries the grant's policy inline and is deleted on release.
func WithRoleFactory(api IAMAPI) STSOption {
	return func(p *STSProvisioner) {
		p.roles = api
	}
}

// WithRoleReadyPolicy bounds how long the provisioner waits for a freshly
// created role to become assumable.
func WithRoleReadyPolicy(policy retry.Policy) STSOption {
	return func(p *STSProvisioner) {
		p.readyPolicy = policy
	}
}

// defaultRoleReadyPolicy covers IAM's usual propagation delay.
func defaultRoleReadyPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 8,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
		Jitter:      true,
	}
}

// classifyRoleReady treats AccessDenied as the new role not having
// propagated yet.
func classifyRoleReady(err error) retry.Decision {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDenied" {
		return retry.Retryable
	}
	return retry.Classify(err)
}

// createRole creates the role for grant id and returns its name and ARN.
func (p *STSProvisioner) createRole(ctx context.Context, id, policy string) (string, string, error) {
	user, err := p.roles.GetUser(ctx, &iam.GetUserInput{})
	if err != nil {
		return "", "", fmt.Errorf("get caller identity: %w", err)
	}
	if user.User == nil || user.User.Arn == nil {
		return "", "", errors.New("GetUser response is missing the user ARN")
	}

	trust, err := marshalPolicy(Statement{
		Effect:    "Allow",
		Principal: map[string]string{"AWS": *user.User.Arn},
		Action:    []string{"sts:AssumeRole"},
	})
	if err != nil {
		return "", "", err
	}

	name := rolePrefix + id
	out, err := p.roles.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(trust),
		Description:              aws.String("forge-transfer grant " + id),
		MaxSessionDuration:       aws.Int32(int32(roleSession(p.duration) / time.Second)),
		Tags: []iamtypes.Tag{
			{Key: aws.String(roleGrantTag), Value: aws.String(id)},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("create role %s: %w", name, err)
	}
	if out.Role == nil || out.Role.Arn == nil {
		p.discardRole(ctx, name, false)
		return "", "", errors.New("CreateRole response is missing the role ARN")
	}

	if _, err := p.roles.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(name),
		PolicyName:     aws.String(name),
		PolicyDocument: aws.String(policy),
	}); err != nil {
		p.discardRole(ctx, name, false)
		return "", "", fmt.Errorf("put role policy %s: %w", name, err)
	}

	p.logger.DebugContext(ctx, "created role", "role_name", name, "role_arn", *out.Role.Arn)
	return name, *out.Role.Arn, nil
}

// deleteRole removes a role created by createRole. Roles already gone count
// as deleted.
func (p *STSProvisioner) deleteRole(ctx context.Context, name string) error {
	_, err := p.roles.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   aws.String(name),
		PolicyName: aws.String(name),
	})
	if err != nil && !isNoSuchEntity(err) {
		return fmt.Errorf("delete role policy: %w", err)
	}
	if _, err := p.roles.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)}); err != nil && !isNoSuchEntity(err) {
		return err
	}
	p.logger.DebugContext(ctx, "deleted role", "role_name", name)
	return nil
}

// discardRole deletes a role whose grant was never handed out. hasPolicy
// reports whether the inline policy was attached.
func (p *STSProvisioner) discardRole(ctx context.Context, name string, hasPolicy bool) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if hasPolicy {
		err = p.deleteRole(ctx, name)
	} else {
		_, err = p.roles.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)})
	}
	if err != nil {
		p.logger.WarnContext(ctx, "failed to delete unused role", "role_name", name, "error", err)
	}
}

// assumeCreated assumes a freshly created role, waiting out propagation.
func (p *STSProvisioner) assumeCreated(ctx context.Context, id, role string, target domain.StorageAddress, policy string) (*domain.AccessGrant, error) {
	return retry.Value(ctx, p.ready, "assumeCreatedRole", func(ctx context.Context) (*domain.AccessGrant, error) {
		return p.assume(ctx, id, role, target, policy)
	}, "role_arn", role)
}

func roleSession(d time.Duration) time.Duration {
	return min(max(d, minRoleSession), maxRoleSession)
}

func isNoSuchEntity(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchEntity"
}
