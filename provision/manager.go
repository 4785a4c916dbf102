package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/clock"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/services/aws/secrets"
)

// DefaultMinValidity is the least validity a grant must have left to be used.
const DefaultMinValidity = 60 * time.Second

// Manager enforces the minimum validity margin, retries transient failures
// and maps every failure onto errors.ProvisionError.
type Manager struct {
	provisioner    Provisioner
	retrier        *retry.Retrier
	clock          clock.Clock
	margin         time.Duration
	releaseTimeout time.Duration
	logger         *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMinValidity sets the minimum validity margin.
func WithMinValidity(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.margin = d
	}
}

// WithRetrier sets the retrier wrapping provisioning calls.
func WithRetrier(r *retry.Retrier) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.retrier = r
		}
	}
}

// WithClock sets the clock used for validity checks.
func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithReleaseTimeout bounds each release call.
func WithReleaseTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.releaseTimeout = d
	}
}

// WithLogger configures the logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager wraps p.
func NewManager(p Provisioner, opts ...ManagerOption) *Manager {
	m := &Manager{
		provisioner:    p,
		clock:          clock.Real{},
		margin:         DefaultMinValidity,
		releaseTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m.retrier == nil {
		m.retrier = retry.New(retry.DefaultPolicy(), retry.WithLogger(m.logger))
	}
	return m
}

// MinValidity returns the configured margin.
func (m *Manager) MinValidity() time.Duration {
	return m.margin
}

// Provision issues a grant for scope on target.
func (m *Manager) Provision(ctx context.Context, target domain.StorageAddress, scope domain.AccessScope) (*domain.AccessGrant, error) {
	return m.issue(ctx, target.String(), func(ctx context.Context) (*domain.AccessGrant, error) {
		return m.provisioner.Provision(ctx, target, scope)
	})
}

// CanProvisionCopy reports whether a single grant can cover reads on src and
// writes on dst.
func (m *Manager) CanProvisionCopy(src, dst domain.StorageAddress) bool {
	if r, ok := m.provisioner.(interface {
		CopyCapable(src, dst domain.StorageAddress) bool
	}); ok {
		return r.CopyCapable(src, dst)
	}
	_, ok := m.provisioner.(CopyProvisioner)
	return ok
}

// ProvisionCopy issues a pair grant for a server-side copy.
func (m *Manager) ProvisionCopy(ctx context.Context, src, dst domain.StorageAddress) (*domain.AccessGrant, error) {
	cp, ok := m.provisioner.(CopyProvisioner)
	if !ok {
		return nil, errors.NewProvisionError(errors.ProvisionMalformed, dst.String(),
			fmt.Errorf("%w: provisioner cannot issue copy grants", errors.ErrUnsupportedProvider))
	}
	return m.issue(ctx, dst.String(), func(ctx context.Context) (*domain.AccessGrant, error) {
		return cp.ProvisionCopy(ctx, src, dst)
	})
}

func (m *Manager) issue(ctx context.Context, target string, fn func(context.Context) (*domain.AccessGrant, error)) (*domain.AccessGrant, error) {
	grant, err := retry.Value(ctx, m.retrier, "provision", func(ctx context.Context) (*domain.AccessGrant, error) {
		g, err := fn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, classify(target, err)
		}
		if g == nil {
			return nil, errors.NewProvisionError(errors.ProvisionMalformed, target, errors.New("provisioner returned no grant"))
		}
		now := m.clock.Now()
		if !g.ValidFor(now, m.margin) {
			m.logger.WarnContext(ctx, "discarding grant below minimum validity",
				"target", target,
				"remaining", g.Remaining(now),
				"min_validity", m.margin)
			if rerr := m.Release(ctx, g); rerr != nil {
				m.logger.WarnContext(ctx, "release of short grant failed", "target", target, "error", rerr)
			}
			return nil, fmt.Errorf("%w: %s left, need %s", errors.ErrGrantExpiresTooSoon, g.Remaining(now), m.margin)
		}
		return g, nil
	}, "target", target)
	if err != nil {
		return nil, finalize(target, err)
	}

	m.logger.DebugContext(ctx, "grant issued",
		"target", target,
		"grant_id", grant.ID,
		"identity", grant.Identity,
		"expires", grant.Expiration)
	return grant, nil
}

// Release revokes grant under the release timeout. The caller's cancellation
// does not cut the release short.
func (m *Manager) Release(ctx context.Context, grant *domain.AccessGrant) error {
	if grant == nil {
		return nil
	}
	rctx := context.WithoutCancel(ctx)
	if m.releaseTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(rctx, m.releaseTimeout)
		defer cancel()
	}
	if err := m.provisioner.Release(rctx, grant); err != nil {
		var ce *errors.CleanupError
		if errors.As(err, &ce) {
			return err
		}
		return errors.NewCleanupError("release", grant.ID, err)
	}
	return nil
}

// classify turns a raw provisioner failure into a ProvisionError so the
// retry layer can tell unreachable backends from refusals.
func classify(target string, err error) error {
	var pe *errors.ProvisionError
	if errors.As(err, &pe) || errors.Is(err, errors.ErrGrantExpiresTooSoon) {
		return err
	}
	switch {
	case retry.Classify(err) == retry.Retryable:
		return errors.NewProvisionError(errors.ProvisionUnreachable, target, err)
	case errors.Is(err, secrets.ErrMalformedToken), errors.Is(err, secrets.ErrSecretEmpty):
		return errors.NewProvisionError(errors.ProvisionMalformed, target, err)
	default:
		return errors.NewProvisionError(errors.ProvisionUnauthorized, target, err)
	}
}

// finalize guarantees the returned error is a ProvisionError, keeping retry
// exhaustion in the chain.
func finalize(target string, err error) error {
	var pe *errors.ProvisionError
	if errors.As(err, &pe) {
		if errors.IsRetryExhausted(err) {
			return errors.NewProvisionError(pe.Kind, target, err)
		}
		return err
	}
	return errors.NewProvisionError(errors.ProvisionUnreachable, target, err)
}
