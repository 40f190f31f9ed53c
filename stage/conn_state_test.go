package stage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAtomicConnState(t *testing.T) {
	require := require.New(t)

	var st AtomicConnState
	require.True(st.IsDisconnected())
	require.Equal("Disconnected", st.String())

	require.False(st.ToConnected())
	require.False(st.ToDisconnecting())

	require.True(st.ToConnecting())
	require.False(st.ToConnecting())
	require.Equal(ConnectingState, st.Get())

	require.True(st.ToConnected())
	require.True(st.IsConnected())
	require.True(st.ToConnected())

	require.True(st.ToDisconnecting())
	require.False(st.ToDisconnecting())
	require.Equal("Disconnecting", st.String())

	require.True(st.ToDisconnected())
	require.True(st.ToDisconnected())
	require.True(st.IsDisconnected())

	// an aborted connect goes through disconnecting
	require.True(st.ToConnecting())
	require.True(st.ToDisconnecting())
	require.True(st.ToDisconnected())
}

func TestConnState_String(t *testing.T) {
	require.Equal(t, "Connected", ConnectedState.String())
	require.Equal(t, "Unknown", ConnState(42).String())
}
