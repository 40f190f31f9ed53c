package scan

import "sync/atomic"

// State is the state of a Scanner.
type State uint32

const (
	IdleState State = iota
	InitializedState
	RunningState
	CompletedState
	FailedState
	PausedState
)

func (s State) String() string {
	switch s {
	case IdleState:
		return "Idle"
	case InitializedState:
		return "Initialized"
	case RunningState:
		return "Running"
	case CompletedState:
		return "Completed"
	case FailedState:
		return "Failed"
	case PausedState:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Resumable reports whether a scan in this state can be resumed.
func (s State) Resumable() bool {
	return s == FailedState || s == PausedState
}

// AtomicState is a State with compare-and-swap transitions.
type AtomicState struct {
	state atomic.Uint32
}

func (st *AtomicState) String() string {
	return st.Get().String()
}

// Get returns the current state.
func (st *AtomicState) Get() State {
	return State(st.state.Load())
}

// Set sets the state unconditionally.
func (st *AtomicState) Set(state State) {
	st.state.Store(uint32(state))
}

// ToRunning moves any initialized, finished or interrupted state to Running.
func (st *AtomicState) ToRunning() bool {
	for _, from := range []State{InitializedState, CompletedState, FailedState, PausedState} {
		if st.state.CompareAndSwap(uint32(from), uint32(RunningState)) {
			return true
		}
	}

	return false
}

// Finish moves Running to a final state.
func (st *AtomicState) Finish(state State) bool {
	return st.state.CompareAndSwap(uint32(RunningState), uint32(state))
}
