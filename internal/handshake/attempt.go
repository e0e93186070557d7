package handshake

import (
	"errors"
	"sync"

	"github.com/omochice/monrst/pkg/protocol"
)

// ErrAttemptResolved is returned when an attempt that already reached a
// terminal state is resolved again.
var ErrAttemptResolved = errors.New("attempt already resolved")

// State of a connection attempt.
type State int

const (
	StatePending State = iota
	StateAdmitted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAdmitted:
		return "admitted"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Attempt tracks one connection attempt from Pending to either Admitted or
// Rejected. Both are terminal: a rejected client has to open a new
// connection to try again.
type Attempt struct {
	controller *Controller

	mu     sync.Mutex
	state  State
	config protocol.Configuration
	reason error
}

// Begin starts a pending attempt negotiated by c.
func (c *Controller) Begin() *Attempt {
	return &Attempt{controller: c}
}

// Resolve negotiates params and moves the attempt to its terminal state.
// The returned error is the rejection reason, or ErrAttemptResolved.
func (a *Attempt) Resolve(params Params) (protocol.Configuration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StatePending {
		return protocol.Configuration{}, ErrAttemptResolved
	}

	config, err := a.controller.Negotiate(params)
	if err != nil {
		a.state, a.reason = StateRejected, err
		return protocol.Configuration{}, err
	}
	a.state, a.config = StateAdmitted, config
	return config, nil
}

// Expire rejects a pending attempt with ErrTimeout. It reports whether the
// attempt was still pending.
func (a *Attempt) Expire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StatePending {
		return false
	}
	a.state, a.reason = StateRejected, &Error{Kind: ErrTimeout}
	return true
}

// Reject rejects a pending attempt with reason, for requests so broken that
// no parameters could be read from them. It reports whether the attempt was
// still pending.
func (a *Attempt) Reject(reason error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StatePending {
		return false
	}
	a.state, a.reason = StateRejected, reason
	return true
}

// State returns the current state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Outcome returns the negotiated configuration of an admitted attempt, or
// the rejection reason of a rejected one. A pending attempt has neither.
func (a *Attempt) Outcome() (protocol.Configuration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config, a.reason
}
