package engine

import (
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
)

// DefaultEventBuffer is the progress channel capacity used when none is given.
const DefaultEventBuffer = 64

// Progress publishes a session's progress events. Publishing never blocks:
// when the consumer falls behind, intermediate events are dropped, and since
// every event carries cumulative counters the next delivered one is still
// accurate. Exactly one DONE event is delivered, after which the channel is
// closed.
//
// A nil *Progress discards everything.
type Progress struct {
	mu        sync.Mutex
	sessionID string
	ch        chan domain.ProgressEvent
	total     int64
	bytes     int64
	parts     int
	state     domain.SessionState
	dropped   int
	done      bool
}

// NewProgress creates a Progress for sessionID with the given channel
// capacity.
func NewProgress(sessionID string, buffer int) *Progress {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Progress{
		sessionID: sessionID,
		ch:        make(chan domain.ProgressEvent, buffer),
		total:     domain.SizeUnknown,
		state:     domain.StatePending,
	}
}

// Events returns the channel events are delivered on.
func (p *Progress) Events() <-chan domain.ProgressEvent {
	if p == nil {
		return nil
	}
	return p.ch
}

// SetTotal records the expected number of bytes.
func (p *Progress) SetTotal(n int64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = n
}

// AddBytes adds n bytes written for key.
func (p *Progress) AddBytes(key string, n int64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bytes += n
	p.emit(domain.EventBytes, key, nil)
}

// PartDone records a completed part of key.
func (p *Progress) PartDone(key string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parts++
	p.emit(domain.EventPart, key, nil)
}

// ObjectDone records that key finished, successfully or with err.
func (p *Progress) ObjectDone(key string, err error) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(domain.EventObject, key, err)
}

// State records a session state transition.
func (p *Progress) State(s domain.SessionState) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	p.emit(domain.EventState, "", nil)
}

// Done delivers the DONE event and closes the channel. If the channel is
// full the oldest pending event is discarded to make room. Later calls are
// no-ops.
func (p *Progress) Done(s domain.SessionState, err error) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.state = s
	ev := p.event(domain.EventDone, "", err)
	for {
		select {
		case p.ch <- ev:
			p.done = true
			close(p.ch)
			return
		default:
		}
		select {
		case <-p.ch:
			p.dropped++
		default:
		}
	}
}

// Snapshot returns the cumulative byte and part counters.
func (p *Progress) Snapshot() (bytes int64, parts int) {
	if p == nil {
		return 0, 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytes, p.parts
}

// Dropped returns how many events were not delivered.
func (p *Progress) Dropped() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *Progress) event(kind domain.EventKind, key string, err error) domain.ProgressEvent {
	return domain.ProgressEvent{
		SessionID:        p.sessionID,
		Kind:             kind,
		Key:              key,
		BytesTransferred: p.bytes,
		TotalBytes:       p.total,
		PartsCompleted:   p.parts,
		State:            p.state,
		Err:              err,
	}
}

// emit must be called with p.mu held.
func (p *Progress) emit(kind domain.EventKind, key string, err error) {
	if p.done {
		return
	}
	select {
	case p.ch <- p.event(kind, key, err):
	default:
		p.dropped++
	}
}
