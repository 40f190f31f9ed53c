package stage

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-xystage/protocol"
)

var (
	ErrNotConnected    = errors.New("stage: not connected")
	ErrCommandTimeout  = errors.New("stage: no correlated response, retries exhausted")
	ErrPingFailed      = errors.New("stage: ping echo not received")
	ErrPositionTimeout = errors.New("stage: timeout waiting for position")
	ErrMotorsStopped   = errors.New("stage: motors stopped off target")
	ErrNilTransport    = errors.New("stage: transport is nil")
)

// CommandError reports a command that exhausted its attempts. It matches
// ErrCommandTimeout and the cause of the last failed attempt.
type CommandError struct {
	Command  protocol.Command
	Attempts int
	Err      error
}

func (e *CommandError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stage: %s failed after %d attempts", e.Command, e.Attempts)
	}

	return fmt.Sprintf("stage: %s failed after %d attempts: %v", e.Command, e.Attempts, e.Err)
}

func (e *CommandError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCommandTimeout}
	}

	return []error{ErrCommandTimeout, e.Err}
}

// MoveError reports a failed segment of a planned move.
type MoveError struct {
	// Segment is the 1-based index of the failed segment.
	Segment  int
	Segments int
	Target   Waypoint
	Err      error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("stage: move to %s failed at segment %d/%d: %v", e.Target, e.Segment, e.Segments, e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }
