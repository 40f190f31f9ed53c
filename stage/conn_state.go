package stage

import "sync/atomic"

// ConnState is the connection state of a Controller.
type ConnState uint32

const (
	DisconnectedState ConnState = iota
	ConnectingState
	ConnectedState
	DisconnectingState
)

func (s ConnState) String() string {
	switch s {
	case DisconnectedState:
		return "Disconnected"
	case ConnectingState:
		return "Connecting"
	case ConnectedState:
		return "Connected"
	case DisconnectingState:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// AtomicConnState is a ConnState with compare-and-swap transitions.
type AtomicConnState struct {
	state atomic.Uint32
}

func (st *AtomicConnState) String() string {
	return st.Get().String()
}

// Get returns the current state.
func (st *AtomicConnState) Get() ConnState {
	return ConnState(st.state.Load())
}

// Set sets the state unconditionally.
func (st *AtomicConnState) Set(state ConnState) {
	st.state.Store(uint32(state))
}

func (st *AtomicConnState) IsDisconnected() bool {
	return st.Get() == DisconnectedState
}

func (st *AtomicConnState) IsConnected() bool {
	return st.Get() == ConnectedState
}

// ToConnecting moves Disconnected to Connecting.
func (st *AtomicConnState) ToConnecting() bool {
	return st.state.CompareAndSwap(uint32(DisconnectedState), uint32(ConnectingState))
}

// ToConnected moves Connecting to Connected. It is true if already connected.
func (st *AtomicConnState) ToConnected() bool {
	if st.IsConnected() {
		return true
	}

	return st.state.CompareAndSwap(uint32(ConnectingState), uint32(ConnectedState))
}

// ToDisconnecting moves Connected or Connecting to Disconnecting.
func (st *AtomicConnState) ToDisconnecting() bool {
	if st.state.CompareAndSwap(uint32(ConnectedState), uint32(DisconnectingState)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(ConnectingState), uint32(DisconnectingState))
}

// ToDisconnected moves Disconnecting to Disconnected. It is true if already
// disconnected.
func (st *AtomicConnState) ToDisconnected() bool {
	if st.IsDisconnected() {
		return true
	}

	return st.state.CompareAndSwap(uint32(DisconnectingState), uint32(DisconnectedState))
}
