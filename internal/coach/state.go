package coach

import "sync/atomic"

type State int32

const (
	StateConnecting State = iota
	StateReady
	StateTurnExchange
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateTurnExchange:
		return "turn-exchange"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateMachine holds the connection state. Closed is terminal.
type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) State() State { return State(m.v.Load()) }

// set moves to next unless the session is already closed.
func (m *stateMachine) set(next State) bool {
	for {
		cur := m.v.Load()
		if State(cur) == StateClosed {
			return false
		}
		if m.v.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}
