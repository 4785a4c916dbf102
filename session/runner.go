package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/engine"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/clock"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/provision"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/retry"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// Runner starts sessions. One Runner serves any number of concurrent
// sessions; they share its engine, stores and provisioner but never a grant.
type Runner struct {
	provisioner  *provision.Manager
	stores       *store.Registry
	engine       *engine.Engine
	retrier      *retry.Retrier
	metrics      *metrics.Metrics
	clock        clock.Clock
	logger       *slog.Logger
	timeout      time.Duration
	eventBuffer  int
	ensureBucket bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithEngine sets the copy engine.
func WithEngine(e *engine.Engine) Option {
	return func(r *Runner) {
		if e != nil {
			r.engine = e
		}
	}
}

// WithRetrier sets the retrier for calls the runner makes itself, such as
// creating the destination bucket.
func WithRetrier(rt *retry.Retrier) Option {
	return func(r *Runner) {
		if rt != nil {
			r.retrier = rt
		}
	}
}

// WithTimeout bounds the duration of each session. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithEventBuffer sets the capacity of each session's progress channel.
func WithEventBuffer(n int) Option {
	return func(r *Runner) {
		r.eventBuffer = n
	}
}

// WithEnsureDestinationBucket makes provisioning create the destination
// bucket when it does not exist.
func WithEnsureDestinationBucket(enabled bool) Option {
	return func(r *Runner) {
		r.ensureBucket = enabled
	}
}

// WithMetrics records session metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithClock sets the clock used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger configures the logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner that provisions through p and opens endpoints
// from stores.
func NewRunner(p *provision.Manager, stores *store.Registry, opts ...Option) *Runner {
	r := &Runner{
		provisioner: p,
		stores:      stores,
		clock:       clock.Real{},
		eventBuffer: engine.DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.retrier == nil {
		r.retrier = retry.New(retry.DefaultPolicy(), retry.WithLogger(r.logger))
	}
	if r.engine == nil {
		r.engine = engine.New(engine.WithRetrier(r.retrier), engine.WithLogger(r.logger), engine.WithMetrics(r.metrics))
	}
	return r
}

// Start launches a session for req and returns without waiting for it.
// Cancelling ctx cancels the session.
func (r *Runner) Start(ctx context.Context, req domain.TransferRequest) *Session {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	s := newSession(id, req, r.eventBuffer, r.clock)

	sctx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	go func() {
		defer cancel(nil)
		r.run(sctx, s)
	}()
	return s
}

// Run executes req and returns its result once the session is
// deprovisioned. Progress events are discarded.
func (r *Runner) Run(ctx context.Context, req domain.TransferRequest) *domain.TransferResult {
	s := r.Start(ctx, req)
	go func() {
		for range s.Events() {
		}
	}()
	return s.Wait()
}

// run drives s from PENDING to DEPROVISIONED. Transitions along the fixed
// path below cannot fail, so their errors are ignored.
func (r *Runner) run(ctx context.Context, s *Session) {
	started := r.clock.Now()
	logger := r.logger.With("session_id", s.id)
	r.metrics.SessionStarted()

	res := &domain.TransferResult{SessionID: s.id, Started: started}
	logger.Info("session started", "source", s.req.Source, "destination", s.req.Destination)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.timeout, ErrTimeout)
		defer cancel()
	}

	_ = s.transition(domain.StateProvisioning)
	src, dst, leases, err := r.provision(ctx, s)
	if err != nil {
		res.Outcome = domain.StateProvisioningFailed
		res.Err = err
		logger.Warn("provisioning failed", "error", err)
	} else {
		_ = s.transition(domain.StateCopying)
		report, err := r.engine.Transfer(ctx, s.req.Source, s.req.Destination, src, dst, s.progress)
		res.Objects = report.Objects
		res.Plans = report.Plans
		res.BytesTransferred = report.Bytes
		res.Parts = report.Parts
		res.CleanupErrors = append(res.CleanupErrors, report.CleanupErrors...)
		if err != nil {
			res.Outcome = domain.StateCopyFailed
			res.Err = err
			logger.Warn("copy failed", "error", err, "code", errors.CodeOf(err))
		} else {
			res.Outcome = domain.StateCompleted
		}
	}
	_ = s.transition(res.Outcome)

	_ = s.transition(domain.StateDeprovisioning)
	for _, l := range leases {
		for _, cerr := range l.Release(ctx) {
			r.metrics.CleanupFailed("release")
			res.CleanupErrors = append(res.CleanupErrors, cerr)
		}
	}
	_ = s.transition(domain.StateDeprovisioned)

	res.State = domain.StateDeprovisioned
	res.Finished = r.clock.Now()
	elapsed := res.Finished.Sub(started)
	r.metrics.SessionFinished(res.Outcome, elapsed)

	logger.Info("session finished",
		"outcome", res.Outcome,
		"objects", len(res.Objects),
		"bytes", humanize.IBytes(uint64(res.BytesTransferred)),
		"parts", res.Parts,
		"cleanup_errors", len(res.CleanupErrors),
		"duration", elapsed)
	s.finish(res)
}

// provision obtains the session's grants and opens both endpoints. A
// server-side copy gets one pair grant when the provisioner can issue one;
// otherwise the source is granted READ and the destination WRITE. The
// returned leases must be released even when err is set.
func (r *Runner) provision(ctx context.Context, s *Session) (src, dst store.Endpoint, leases []*provision.Lease, err error) {
	scope := s.req.Scope
	if scope == "" {
		scope = domain.ScopeWrite
	}
	if !scope.CanWrite() {
		return nil, nil, nil, errors.NewProvisionError(errors.ProvisionMalformed, s.req.Destination.String(),
			fmt.Errorf("destination scope %s does not permit writes", scope))
	}

	prelim, err := r.engine.Planner().Plan(s.req.Source, s.req.Destination, domain.SizeUnknown)
	if err != nil {
		return nil, nil, nil, err
	}

	var srcCreds, dstCreds store.Credentials
	if prelim.Strategy == domain.StrategyServerSideCopy && r.provisioner.CanProvisionCopy(s.req.Source, s.req.Destination) {
		pair := r.provisioner.CopyLease(s.req.Source, s.req.Destination)
		leases = []*provision.Lease{pair}
		srcCreds, dstCreds = pair, pair
	} else {
		srcLease := r.provisioner.Lease(s.req.Source, domain.ScopeRead)
		dstLease := r.provisioner.Lease(s.req.Destination, scope)
		leases = []*provision.Lease{srcLease, dstLease}
		srcCreds, dstCreds = srcLease, dstLease
	}

	for _, l := range leases {
		if _, err := l.Grant(ctx); err != nil {
			return nil, nil, leases, err
		}
	}

	if src, err = r.stores.Open(ctx, s.req.Source, srcCreds); err != nil {
		return nil, nil, leases, err
	}
	if dst, err = r.stores.Open(ctx, s.req.Destination, dstCreds); err != nil {
		return nil, nil, leases, err
	}

	if r.ensureBucket {
		if be, ok := dst.(store.BucketEnsurer); ok {
			err := r.retrier.Do(ctx, "ensureBucket", be.EnsureBucket, "bucket", s.req.Destination.Bucket)
			if err != nil {
				return nil, nil, leases, err
			}
		}
	}
	return src, dst, leases, nil
}
