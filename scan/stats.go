package scan

import "sync/atomic"

// ErrorStats contains atomic counters of scan errors. Counters only increase.
type ErrorStats struct {
	// CommunicationErrors indicates the number of moves failed by unanswered
	// commands or transport errors.
	CommunicationErrors atomic.Uint64
	// PositioningErrors indicates the number of points that could not be
	// reached after retries and recovery.
	PositioningErrors atomic.Uint64
	// RecoveryAttempts indicates the number of recovery procedures started.
	RecoveryAttempts atomic.Uint64
	// SuccessfulRecoveries indicates the number of recoveries that reached
	// their target.
	SuccessfulRecoveries atomic.Uint64
}

// ErrorStatsSnapshot is a point-in-time copy of ErrorStats.
type ErrorStatsSnapshot struct {
	CommunicationErrors  uint64
	PositioningErrors    uint64
	RecoveryAttempts     uint64
	SuccessfulRecoveries uint64
}

// Snapshot returns the current counter values.
func (s *ErrorStats) Snapshot() ErrorStatsSnapshot {
	return ErrorStatsSnapshot{
		CommunicationErrors:  s.CommunicationErrors.Load(),
		PositioningErrors:    s.PositioningErrors.Load(),
		RecoveryAttempts:     s.RecoveryAttempts.Load(),
		SuccessfulRecoveries: s.SuccessfulRecoveries.Load(),
	}
}

func (s *ErrorStats) incCommunicationErrors()  { s.CommunicationErrors.Add(1) }
func (s *ErrorStats) incPositioningErrors()    { s.PositioningErrors.Add(1) }
func (s *ErrorStats) incRecoveryAttempts()     { s.RecoveryAttempts.Add(1) }
func (s *ErrorStats) incSuccessfulRecoveries() { s.SuccessfulRecoveries.Add(1) }
