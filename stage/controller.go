package stage

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/arloliu/go-xystage/exithook"
	"github.com/arloliu/go-xystage/internal/pool"
	"github.com/arloliu/go-xystage/logger"
	"github.com/arloliu/go-xystage/protocol"
	"github.com/arloliu/go-xystage/transport"
)

// Controller drives a two-axis stage through a framed transport.
//
// A Controller owns its transport and the cached DeviceState. It is driven by
// a single caller; concurrent calls must be serialized by the caller.
type Controller struct {
	cfg       *Config
	transport transport.Transport
	logger    logger.Logger
	metrics   Metrics

	connState AtomicConnState
	state     DeviceState
	lastSend  time.Time

	// statusFrames counts observed status-bearing frames.
	statusFrames uint64

	hook   exithook.Handle
	hooked bool
}

// New creates a disconnected controller. A nil cfg uses the defaults.
//
// Unless the configuration has WithoutExitHook, the controller registers with
// the exithook registry until Close is called.
func New(t transport.Transport, cfg *Config) (*Controller, error) {
	if t == nil {
		return nil, ErrNilTransport
	}
	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	c := &Controller{
		cfg:       cfg,
		transport: t,
		logger:    cfg.logger.With("component", "stage"),
		state:     DeviceState{Mode: protocol.ModeJoystick},
	}

	if cfg.exitHook {
		c.hook = exithook.Register(c)
		c.hooked = true
	}

	return c, nil
}

// Config returns the controller configuration.
func (c *Controller) Config() *Config { return c.cfg }

// Metrics returns the controller metrics.
func (c *Controller) Metrics() *Metrics { return &c.metrics }

// IsConnected reports whether the controller is connected.
func (c *Controller) IsConnected() bool { return c.connState.IsConnected() }

// Connect opens the transport, waits for the board to settle and verifies the
// link with a ping. Connecting a connected controller is a no-op. On failure
// the transport is closed again.
func (c *Controller) Connect(ctx context.Context) error {
	if c.connState.IsConnected() {
		return nil
	}
	if !c.connState.ToConnecting() {
		return fmt.Errorf("stage: cannot connect in state %s", c.connState.String())
	}

	c.logger.Info("connecting to stage")

	if err := c.transport.Open(); err != nil {
		c.connState.Set(DisconnectedState)
		return fmt.Errorf("stage: open transport: %w", err)
	}

	if err := pool.Sleep(ctx, c.cfg.settleDelay); err != nil {
		c.abortConnect()
		return err
	}

	if err := c.ping(ctx); err != nil {
		c.abortConnect()
		return err
	}

	c.connState.ToConnected()
	c.logger.Info("connected to stage")

	return nil
}

func (c *Controller) abortConnect() {
	c.connState.ToDisconnecting()
	if err := c.transport.Close(); err != nil {
		c.logger.Debug("close transport after failed connect", "error", err)
	}
	c.connState.Set(DisconnectedState)
}

// Disconnect closes the transport without touching the motors. It is a no-op
// when not connected.
func (c *Controller) Disconnect() error {
	if !c.connState.ToDisconnecting() {
		return nil
	}

	err := c.transport.Close()
	c.connState.ToDisconnected()
	c.logger.Info("disconnected from stage")

	if err != nil {
		return fmt.Errorf("stage: close transport: %w", err)
	}

	return nil
}

// Close releases the hardware: when connected it stops the motors, disables
// them and returns the device to joystick mode (as configured), flushes the
// transport and disconnects. Each step is attempted even if an earlier one
// failed; failures are logged and never returned.
//
// Close removes the controller from the exithook registry and is safe to call
// more than once.
func (c *Controller) Close() error {
	defer c.unhook()

	if !c.connState.IsConnected() {
		return nil
	}

	ctx := context.Background()
	pause := c.cfg.shutdownPause

	c.logger.Info("performing safe shutdown")

	c.guard("stop", c.Stop(ctx))
	_ = pool.Sleep(ctx, pause)

	if c.cfg.autoDisableOnClose {
		c.guard("disable motors", c.DisableMotors(ctx))
		_ = pool.Sleep(ctx, 2*pause)
	}

	if c.cfg.autoJoystickOnClose {
		c.guard("switch to joystick mode", c.SetMode(ctx, protocol.ModeJoystick))
		_ = pool.Sleep(ctx, pause)
	}

	c.guard("flush", c.Flush())
	c.guard("disconnect", c.Disconnect())

	return nil
}

func (c *Controller) guard(step string, err error) {
	if err != nil {
		c.logger.Error("shutdown step failed", "step", step, "error", err)
	}
}

func (c *Controller) unhook() {
	if c.hooked {
		exithook.Unregister(c.hook)
		c.hooked = false
	}
}

func (c *Controller) ping(ctx context.Context) error {
	value := rand.Int32N(9000) + 1000 //nolint:gosec // not security sensitive

	c.logger.Debug("pinging stage", "value", value)

	_, err := c.send(ctx, protocol.PingCommand(value),
		WithTimeout(c.cfg.pingTimeout), WithRetries(1), WithStrict(true))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrPingFailed, err)
	}

	return nil
}
