package broker

import (
	"fmt"
	"sync"

	"github.com/mhalloran/indexarb/internal/errs"
)

// ConnState is the adapter connection lifecycle state.
type ConnState string

const (
	// StateDisconnected: no session.
	StateDisconnected ConnState = "disconnected"
	// StateConnecting: session being established.
	StateConnecting ConnState = "connecting"
	// StateConnected: session live; reads and orders allowed.
	StateConnected ConnState = "connected"
	// StateDisconnecting: session being torn down.
	StateDisconnecting ConnState = "disconnecting"
)

// validTransitions encodes the lifecycle:
// disconnected -> connecting -> connected -> disconnecting -> disconnected.
// A failed connect falls back to disconnected.
var validTransitions = map[ConnState][]ConnState{
	StateDisconnected:  {StateConnecting},
	StateConnecting:    {StateConnected, StateDisconnected},
	StateConnected:     {StateDisconnecting},
	StateDisconnecting: {StateDisconnected},
}

// connStateMachine serializes connection state transitions. Safe for
// concurrent use.
type connStateMachine struct {
	mu    sync.Mutex
	state ConnState
}

func newConnStateMachine() *connStateMachine {
	return &connStateMachine{state: StateDisconnected}
}

// Current returns the current state.
func (m *connStateMachine) Current() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to a new state, failing when the edge is not part of
// the lifecycle.
func (m *connStateMachine) Transition(to ConnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range validTransitions[m.state] {
		if allowed == to {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", errs.ErrPreconditionNotMet, m.state, to)
}

// RequireConnected fails unless the session is live.
func (m *connStateMachine) RequireConnected() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return fmt.Errorf("%w: broker not connected (state %s)", errs.ErrPreconditionNotMet, m.state)
	}
	return nil
}
