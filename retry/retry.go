// Package retry decorates remote calls with bounded, jittered exponential
// backoff and a per-attempt timeout.
//
// Every call the transfer engine makes against an identity backend or an
// object store goes through a Retrier. A Classifier decides whether a failure
// is worth another attempt; terminal failures are returned unchanged, and a
// retryable failure that survives every attempt is wrapped in
// errors.RetryExhaustedError so the last cause is preserved.
package retry

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/clock"
)

// Policy bounds how a Retrier retries.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// CallTimeout bounds each individual attempt. Zero disables it.
	CallTimeout time.Duration

	// Jitter randomizes each delay between BaseDelay and the computed delay.
	Jitter bool
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		CallTimeout: 30 * time.Second,
		Jitter:      true,
	}
}

// Observer is notified before every retry. It must not block.
type Observer func(op string, attempt int, err error)

// Retrier runs operations under a Policy.
// It is safe for concurrent use; each Do call keeps its own backoff state.
type Retrier struct {
	policy   Policy
	classify Classifier
	clock    clock.Clock
	logger   *slog.Logger
	observer Observer
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithClassifier replaces the default Classify function.
func WithClassifier(c Classifier) Option {
	return func(r *Retrier) {
		if c != nil {
			r.classify = c
		}
	}
}

// WithClock sets the clock used for backoff sleeps.
func WithClock(c clock.Clock) Option {
	return func(r *Retrier) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger configures the logger that records each retry.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retrier) {
		r.logger = logger
	}
}

// WithObserver registers a callback invoked before each retry.
func WithObserver(o Observer) Option {
	return func(r *Retrier) {
		r.observer = o
	}
}

// New creates a Retrier. Zero policy fields fall back to DefaultPolicy values.
func New(policy Policy, opts ...Option) *Retrier {
	def := DefaultPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}

	r := &Retrier{
		policy:   policy,
		classify: Classify,
		clock:    clock.Real{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// WithoutCallTimeout returns a copy of r whose attempts are bounded only by
// the caller's context. Calls that return a stream outliving the attempt,
// such as opening an object for reading, need it.
func (r *Retrier) WithoutCallTimeout() *Retrier {
	cp := *r
	cp.policy.CallTimeout = 0
	return &cp
}

// Do runs fn until it succeeds, fails terminally, or exhausts the attempt
// budget. attrs are appended to every retry log record (e.g. "part", 3).
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error, attrs ...any) error {
	b := &backoff.Backoff{
		Min:    r.policy.BaseDelay,
		Max:    r.policy.MaxDelay,
		Factor: 2,
		Jitter: r.policy.Jitter,
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err, timedOut := r.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// The caller gave up; whatever fn returned is terminal.
			return err
		}
		if !timedOut && r.classify(err) != Retryable {
			return err
		}
		if attempt >= r.policy.MaxAttempts {
			return &errors.RetryExhaustedError{Op: op, Attempts: attempt, Err: err}
		}

		delay := b.Duration()
		args := append([]any{
			"operation", op,
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"delay", delay,
			"error", err,
		}, attrs...)
		r.logger.Warn("retrying transient failure", args...)
		if r.observer != nil {
			r.observer(op, attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(delay):
		}
	}
}

// attempt runs fn once under the per-call timeout. timedOut reports whether
// that timeout, and not the caller's context, ended the attempt.
func (r *Retrier) attempt(ctx context.Context, fn func(context.Context) error) (err error, timedOut bool) {
	if r.policy.CallTimeout <= 0 {
		return fn(ctx), false
	}
	callCtx, cancel := context.WithTimeout(ctx, r.policy.CallTimeout)
	defer cancel()
	err = fn(callCtx)
	if err != nil && ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
		return err, true
	}
	return err, false
}

// Value runs fn under r and returns its result.
func Value[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error), attrs ...any) (T, error) {
	var out T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, attrs...)
	return out, err
}
