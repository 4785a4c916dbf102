// Package session runs transfer requests through the provisioning state
// machine.
//
// A session moves PENDING -> PROVISIONING -> COPYING -> COMPLETED or
// COPY_FAILED, or from PROVISIONING to PROVISIONING_FAILED. Every outcome
// is followed by DEPROVISIONING and DEPROVISIONED, which release the
// session's grants exactly once and carry the outcome forward unchanged.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/engine"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/clock"
)

var (
	// ErrCancelled is the cause of a session stopped by Cancel.
	ErrCancelled = errors.New("session cancelled")

	// ErrTimeout is the cause of a session stopped by its timeout.
	ErrTimeout = errors.New("session timed out")
)

var transitions = map[domain.SessionState][]domain.SessionState{
	domain.StatePending:            {domain.StateProvisioning},
	domain.StateProvisioning:       {domain.StateCopying, domain.StateProvisioningFailed},
	domain.StateCopying:            {domain.StateCompleted, domain.StateCopyFailed},
	domain.StateCompleted:          {domain.StateDeprovisioning},
	domain.StateCopyFailed:         {domain.StateDeprovisioning},
	domain.StateProvisioningFailed: {domain.StateDeprovisioning},
	domain.StateDeprovisioning:     {domain.StateDeprovisioned},
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to domain.SessionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is one running transfer. It is safe for concurrent use.
type Session struct {
	id       string
	req      domain.TransferRequest
	progress *engine.Progress
	clock    clock.Clock
	cancel   context.CancelCauseFunc
	done     chan struct{}

	mu      sync.Mutex
	state   domain.SessionState
	history []domain.Transition
	result  *domain.TransferResult
}

func newSession(id string, req domain.TransferRequest, buffer int, c clock.Clock) *Session {
	return &Session{
		id:       id,
		req:      req,
		progress: engine.NewProgress(id, buffer),
		clock:    c,
		done:     make(chan struct{}),
		state:    domain.StatePending,
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Request returns the request the session runs.
func (s *Session) Request() domain.TransferRequest {
	return s.req
}

// State returns the current state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns every transition taken so far, oldest first.
func (s *Session) History() []domain.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Transition(nil), s.history...)
}

// Events returns the progress channel. It delivers exactly one DONE event
// and is closed after it. Events are dropped rather than delaying the copy
// when the consumer falls behind.
func (s *Session) Events() <-chan domain.ProgressEvent {
	return s.progress.Events()
}

// Cancel stops the session. A copy in flight fails with a Cancelled cause
// and the session still deprovisions.
func (s *Session) Cancel() {
	if s.cancel != nil {
		s.cancel(ErrCancelled)
	}
}

// Done is closed once the session reaches DEPROVISIONED.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session is deprovisioned and returns its result.
func (s *Session) Wait() *domain.TransferResult {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// transition moves the session to the next state.
func (s *Session) transition(to domain.SessionState) error {
	s.mu.Lock()
	from := s.state
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, from, to)
	}
	s.state = to
	s.history = append(s.history, domain.Transition{From: from, To: to, At: s.clock.Now()})
	s.mu.Unlock()

	s.progress.State(to)
	return nil
}

func (s *Session) finish(res *domain.TransferResult) {
	s.mu.Lock()
	s.result = res
	s.mu.Unlock()
	s.progress.Done(res.State, res.Err)
	close(s.done)
}
