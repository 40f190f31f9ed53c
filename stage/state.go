package stage

import (
	"fmt"
	"time"

	"github.com/arloliu/go-xystage/protocol"
)

// Position is a motor position in steps.
type Position struct {
	X int32
	Y int32
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// Waypoint is a move target. Unset axes are not constrained.
type Waypoint struct {
	X protocol.Axis
	Y protocol.Axis
}

// To returns a waypoint constraining both axes.
func To(x, y int32) Waypoint {
	return Waypoint{X: protocol.At(x), Y: protocol.At(y)}
}

func (w Waypoint) String() string {
	return fmt.Sprintf("(%s, %s)", w.X, w.Y)
}

// DeviceState is the last observed state of the device.
type DeviceState struct {
	Position      Position
	XSpeed        int16
	YSpeed        int16
	XRunning      bool
	YRunning      bool
	Mode          protocol.Mode
	MotorsEnabled bool
	Connected     bool
	Sequence      uint16
	// UpdatedAt is the time of the last status-bearing frame.
	UpdatedAt time.Time
}

// Running reports whether any motor was running.
func (s DeviceState) Running() bool {
	return s.XRunning || s.YRunning
}

// State returns a copy of the cached device state.
func (c *Controller) State() DeviceState {
	st := c.state
	st.Connected = c.connState.IsConnected()

	return st
}

// ConnState returns the connection state.
func (c *Controller) ConnState() ConnState {
	return c.connState.Get()
}

// observe folds a decoded status-bearing frame into the cache.
func (c *Controller) observe(r protocol.StatusResponse) {
	c.state.Position = Position{X: r.X, Y: r.Y}
	c.state.XSpeed = r.XSpeed
	c.state.YSpeed = r.YSpeed
	c.state.XRunning = r.XRunning
	c.state.YRunning = r.YRunning
	c.state.Mode = r.Mode
	c.state.Sequence = r.Sequence
	c.state.UpdatedAt = time.Now()
	c.statusFrames++
	c.metrics.incStatusFrameCount()
}
