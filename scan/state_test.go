package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-xystage/stage"
)

func TestAtomicState(t *testing.T) {
	require := require.New(t)

	var st AtomicState
	require.Equal(IdleState, st.Get())
	require.False(st.ToRunning())
	require.False(st.Finish(CompletedState))

	st.Set(InitializedState)
	require.True(st.ToRunning())
	require.False(st.ToRunning())
	require.Equal("Running", st.String())

	require.True(st.Finish(PausedState))
	require.True(st.Get().Resumable())
	require.True(st.ToRunning())
	require.True(st.Finish(FailedState))
	require.True(st.Get().Resumable())
	require.True(st.ToRunning())
	require.True(st.Finish(CompletedState))
	require.False(st.Get().Resumable())
	require.True(st.ToRunning())

	require.Equal("Unknown", State(99).String())
}

func TestProgress(t *testing.T) {
	require := require.New(t)

	p := newProgress(4)
	require.InDelta(0.0, p.Percent(), 1e-9)

	p.complete(GridPoint{X: 10, Y: 20, Col: 1, Row: 0})
	require.Equal(1, p.CompletedPoints)
	require.Equal(GridIndex{Row: 0, Col: 1}, p.Current)
	require.True(p.IsDone(GridIndex{Row: 0, Col: 1}))
	require.InDelta(25.0, p.Percent(), 1e-9)

	clone := p.Clone()
	clone.complete(GridPoint{Col: 0, Row: 0})
	require.Len(p.Done, 1)
	require.Len(clone.Done, 2)

	require.InDelta(100.0, Progress{}.Percent(), 1e-9)
	require.NotNil(Progress{}.Clone().Done)
}

func TestReport_ETA(t *testing.T) {
	require := require.New(t)

	p := newProgress(4)
	p.complete(GridPoint{Col: 0})

	r := newReport(GridPoint{Col: 0}, stage.Position{X: 1, Y: 2}, p, 2*time.Second)
	require.Equal(1, r.Completed)
	require.Equal(4, r.Total)
	require.Equal(6*time.Second, r.ETA)
	require.Equal(stage.Position{X: 1, Y: 2}, r.Actual)
}

func TestErrorStats(t *testing.T) {
	var stats ErrorStats
	stats.incCommunicationErrors()
	stats.incCommunicationErrors()
	stats.incRecoveryAttempts()

	require.Equal(t, ErrorStatsSnapshot{CommunicationErrors: 2, RecoveryAttempts: 1}, stats.Snapshot())
}
