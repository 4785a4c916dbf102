package provision

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/services/aws/secrets"
)

// mockSTSClient implements STSAPI for testing
type mockSTSClient struct {
	mu             sync.Mutex
	inputs         []*sts.AssumeRoleInput
	AssumeRoleFunc func(context.Context, *sts.AssumeRoleInput, ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

func (m *mockSTSClient) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, params)
	m.mu.Unlock()
	if m.AssumeRoleFunc != nil {
		return m.AssumeRoleFunc(ctx, params, optFns...)
	}
	return &sts.AssumeRoleOutput{}, nil
}

func (m *mockSTSClient) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// mockPolicyClient implements BucketPolicyAPI over an in-memory policy.
// Get opens an edit and Put or Delete closes it; maxInFlight records the most
// edits ever open at once.
type mockPolicyClient struct {
	mu          sync.Mutex
	policy      string
	puts        int
	deletes     int
	getDelay    time.Duration
	inFlight    int
	maxInFlight int
}

func (m *mockPolicyClient) GetBucketPolicy(_ context.Context, _ *s3.GetBucketPolicyInput, _ ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error) {
	m.mu.Lock()
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)
	p := m.policy
	delay := m.getDelay
	m.mu.Unlock()

	time.Sleep(delay)
	if p == "" {
		return nil, &smithy.GenericAPIError{Code: "NoSuchBucketPolicy", Message: "The bucket policy does not exist"}
	}
	return &s3.GetBucketPolicyOutput{Policy: &p}, nil
}

func (m *mockPolicyClient) PutBucketPolicy(_ context.Context, params *s3.PutBucketPolicyInput, _ ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
	m.puts++
	m.policy = *params.Policy
	return &s3.PutBucketPolicyOutput{}, nil
}

func (m *mockPolicyClient) DeleteBucketPolicy(_ context.Context, _ *s3.DeleteBucketPolicyInput, _ ...func(*s3.Options)) (*s3.DeleteBucketPolicyOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
	m.deletes++
	m.policy = ""
	return &s3.DeleteBucketPolicyOutput{}, nil
}

// mockIAMClient implements IAMAPI with function fields and records the
// operations it serves in order
type mockIAMClient struct {
	mu                   sync.Mutex
	ops                  []string
	GetUserFunc          func(context.Context, *iam.GetUserInput) (*iam.GetUserOutput, error)
	CreateRoleFunc       func(context.Context, *iam.CreateRoleInput) (*iam.CreateRoleOutput, error)
	PutRolePolicyFunc    func(context.Context, *iam.PutRolePolicyInput) (*iam.PutRolePolicyOutput, error)
	DeleteRolePolicyFunc func(context.Context, *iam.DeleteRolePolicyInput) (*iam.DeleteRolePolicyOutput, error)
	DeleteRoleFunc       func(context.Context, *iam.DeleteRoleInput) (*iam.DeleteRoleOutput, error)
}

func (m *mockIAMClient) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
}

func (m *mockIAMClient) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

func (m *mockIAMClient) GetUser(ctx context.Context, params *iam.GetUserInput, _ ...func(*iam.Options)) (*iam.GetUserOutput, error) {
	m.record("GetUser")
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, params)
	}
	return &iam.GetUserOutput{User: &iamtypes.User{Arn: aws.String("arn:aws:iam::1:user/forge")}}, nil
}

func (m *mockIAMClient) CreateRole(ctx context.Context, params *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	m.record("CreateRole")
	if m.CreateRoleFunc != nil {
		return m.CreateRoleFunc(ctx, params)
	}
	return &iam.CreateRoleOutput{Role: &iamtypes.Role{
		RoleName: params.RoleName,
		Arn:      aws.String("arn:aws:iam::1:role/" + aws.ToString(params.RoleName)),
	}}, nil
}

func (m *mockIAMClient) PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	m.record("PutRolePolicy")
	if m.PutRolePolicyFunc != nil {
		return m.PutRolePolicyFunc(ctx, params)
	}
	return &iam.PutRolePolicyOutput{}, nil
}

func (m *mockIAMClient) DeleteRolePolicy(ctx context.Context, params *iam.DeleteRolePolicyInput, _ ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error) {
	m.record("DeleteRolePolicy")
	if m.DeleteRolePolicyFunc != nil {
		return m.DeleteRolePolicyFunc(ctx, params)
	}
	return &iam.DeleteRolePolicyOutput{}, nil
}

func (m *mockIAMClient) DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	m.record("DeleteRole")
	if m.DeleteRoleFunc != nil {
		return m.DeleteRoleFunc(ctx, params)
	}
	return &iam.DeleteRoleOutput{}, nil
}

// mockProvisioner implements Provisioner with function fields
type mockProvisioner struct {
	mu            sync.Mutex
	provisions    int
	releases      []string
	ProvisionFunc func(context.Context, domain.StorageAddress, domain.AccessScope) (*domain.AccessGrant, error)
	ReleaseFunc   func(context.Context, *domain.AccessGrant) error
}

func (m *mockProvisioner) Provision(ctx context.Context, target domain.StorageAddress, scope domain.AccessScope) (*domain.AccessGrant, error) {
	m.mu.Lock()
	m.provisions++
	m.mu.Unlock()
	return m.ProvisionFunc(ctx, target, scope)
}

func (m *mockProvisioner) Release(ctx context.Context, grant *domain.AccessGrant) error {
	m.mu.Lock()
	m.releases = append(m.releases, grant.ID)
	m.mu.Unlock()
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, grant)
	}
	return nil
}

func (m *mockProvisioner) provisionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provisions
}

// mockTokenReader implements TokenReader
type mockTokenReader struct {
	tokens map[string]*secrets.Token
	err    error
}

func (m *mockTokenReader) GetToken(_ context.Context, name string) (*secrets.Token, error) {
	if m.err != nil {
		return nil, m.err
	}
	tok, ok := m.tokens[name]
	if !ok {
		return nil, secrets.ErrSecretNotFound
	}
	return tok, nil
}
