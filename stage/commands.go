package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-xystage/internal/pool"
	"github.com/arloliu/go-xystage/protocol"
	"github.com/arloliu/go-xystage/transport"
)

const motorStopPollInterval = 100 * time.Millisecond

// Ping verifies the link with a random value the device must echo.
func (c *Controller) Ping(ctx context.Context) error {
	if !c.connState.IsConnected() {
		return ErrNotConnected
	}

	return c.ping(ctx)
}

// Status queries the device state. When the device does not answer, the
// cached state is returned; only a lost connection or a cancelled context is
// reported as an error.
func (c *Controller) Status(ctx context.Context) (DeviceState, error) {
	if _, err := c.queryStatus(ctx); err != nil {
		return c.State(), err
	}

	return c.State(), nil
}

// Position queries the device and returns the motor position, falling back
// to the cached position like Status.
func (c *Controller) Position(ctx context.Context) (Position, error) {
	st, err := c.Status(ctx)
	return st.Position, err
}

// queryStatus sends a status query. fresh reports whether the query was
// confirmed.
func (c *Controller) queryStatus(ctx context.Context, opts ...SendOption) (fresh bool, err error) {
	_, err = c.Send(ctx, protocol.NewCommand(protocol.CmdStatus, protocol.AxisNone, 0, 0), opts...)
	if err == nil {
		return true, nil
	}
	if fatalForQuery(ctx, err) {
		return false, err
	}
	if c.cfg.logStatusTraffic {
		c.logger.Debug("status query unanswered, using cached state", "error", err)
	}

	return false, nil
}

// fatalForQuery reports whether a failed status query must end the caller's
// wait rather than fall back to the cache.
func fatalForQuery(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, transport.ErrClosed)
}

// SetSpeed sets the motor speeds. Unset axes keep their speed.
func (c *Controller) SetSpeed(ctx context.Context, x, y protocol.Axis) error {
	_, err := c.Send(ctx, protocol.AxisCommand(protocol.CmdSetSpeed, x, y))
	return err
}

// SetAcceleration sets the motor accelerations. Unset axes keep their value.
func (c *Controller) SetAcceleration(ctx context.Context, x, y protocol.Axis) error {
	_, err := c.Send(ctx, protocol.AxisCommand(protocol.CmdSetAccel, x, y))
	return err
}

// Home defines the current motor position as the origin. The cached position
// becomes (0, 0) unless the device answered with a correlated status frame,
// whose position is kept.
func (c *Controller) Home(ctx context.Context) error {
	out, err := c.Send(ctx, protocol.NewCommand(protocol.CmdHome, protocol.AxisBoth, 0, 0))
	if err != nil {
		return err
	}

	// only a correlated status frame reports the post-home position
	if _, ok := out.Response.(protocol.StatusResponse); !ok || out.Kind != OutcomeDirect {
		c.state.Position = Position{}
	}

	return nil
}

// Stop stops both motors.
func (c *Controller) Stop(ctx context.Context) error {
	_, err := c.Send(ctx, protocol.NewCommand(protocol.CmdStop, protocol.AxisBoth, 0, 0))
	return err
}

// SetMode switches between joystick and serial control. The cached mode is
// updated on any successful outcome, derived ones included.
func (c *Controller) SetMode(ctx context.Context, mode protocol.Mode) error {
	if _, err := c.Send(ctx, protocol.ModeCommand(mode)); err != nil {
		return err
	}
	c.state.Mode = mode
	c.logger.Debug("operation mode set", "mode", mode)

	return nil
}

// EnableMotors enables both motors. As with SetMode, a derived success updates
// the cached enable flag.
func (c *Controller) EnableMotors(ctx context.Context) error {
	if _, err := c.Send(ctx, protocol.NewCommand(protocol.CmdEnable, protocol.AxisBoth, 0, 0)); err != nil {
		return err
	}
	c.state.MotorsEnabled = true

	return nil
}

// DisableMotors disables both motors. See EnableMotors.
func (c *Controller) DisableMotors(ctx context.Context) error {
	if _, err := c.Send(ctx, protocol.NewCommand(protocol.CmdDisable, protocol.AxisBoth, 0, 0)); err != nil {
		return err
	}
	c.state.MotorsEnabled = false

	return nil
}

// Flush discards pending transport bytes.
func (c *Controller) Flush() error {
	if !c.connState.IsConnected() {
		return ErrNotConnected
	}
	if err := c.transport.Flush(); err != nil {
		return fmt.Errorf("stage: flush: %w", err)
	}
	c.logger.Debug("transport buffers flushed")

	return nil
}

// WaitForMotorsToStop polls the device until neither motor is running.
func (c *Controller) WaitForMotorsToStop(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		fresh, err := c.queryStatus(ctx, WithTimeout(min(c.cfg.commandTimeout, time.Until(deadline))), WithRetries(1))
		if err != nil {
			return err
		}
		if fresh && !c.state.Running() {
			return nil
		}
		if err := pool.Sleep(ctx, min(motorStopPollInterval, time.Until(deadline))); err != nil {
			return err
		}
	}

	c.logger.Warn("timeout waiting for motors to stop", "timeout", timeout)

	return fmt.Errorf("%w: motors still running after %v", ErrPositionTimeout, timeout)
}
