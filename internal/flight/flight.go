// Package flight tracks the single outstanding request of one kind.
//
// A Slot moves between two states: Idle, and Pending with the key of the
// request in flight. Begin cancels whatever was pending and hands out a
// Ticket; only the holder of the current ticket may complete the operation
// and touch the owner's state. Completions presented with a stale ticket
// belong to superseded or cancelled requests and must be dropped.
//
// A Slot does no locking of its own. The owner guards it with the same mutex
// that protects the state the request will mutate, so checking the ticket and
// applying the result happen as one step.
package flight

import "context"

// State is the phase of a Slot.
type State int

const (
	Idle State = iota
	Pending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	default:
		return "unknown"
	}
}

// Ticket identifies one started request.
type Ticket uint64

// Slot holds at most one pending request. The zero value is Idle.
type Slot struct {
	ticket Ticket
	key    string
	cancel context.CancelFunc
}

// State reports whether a request is pending.
func (s *Slot) State() State {
	if s.cancel == nil {
		return Idle
	}
	return Pending
}

// Key returns the key of the pending request, or "" when idle.
func (s *Slot) Key() string {
	return s.key
}

// Begin supersedes any pending request and starts a new one for key.
// The returned context is cancelled when the request is superseded,
// cancelled through the Slot, or finished.
func (s *Slot) Begin(ctx context.Context, key string) (context.Context, Ticket) {
	s.Cancel()

	reqCtx, cancel := context.WithCancel(ctx)
	s.ticket++
	s.key = key
	s.cancel = cancel
	return reqCtx, s.ticket
}

// Finish completes the request identified by t and returns the Slot to Idle.
// It reports false, leaving the Slot untouched, if t is no longer current.
func (s *Slot) Finish(t Ticket) bool {
	if t != s.ticket || s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	s.key = ""
	return true
}

// Cancel aborts the pending request, if any, and invalidates its ticket.
func (s *Slot) Cancel() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.key = ""
	s.ticket++
}
