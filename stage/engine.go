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

// OutcomeKind classifies how a command was confirmed.
type OutcomeKind uint8

const (
	// OutcomeDirect means a response correlated to the command was received.
	OutcomeDirect OutcomeKind = iota + 1
	// OutcomeDerived means only uncorrelated status frames arrived before the
	// timeout and the command was assumed to have succeeded.
	OutcomeDerived
	// OutcomeAccepted means a movement command received its first frame.
	// Completion must be confirmed by position polling.
	OutcomeAccepted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDirect:
		return "direct"
	case OutcomeDerived:
		return "derived"
	case OutcomeAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// Outcome is a successful command result.
type Outcome struct {
	Kind OutcomeKind
	// Response is the frame that confirmed the command. It may be nil for an
	// accepted movement command whose first frame could not be decoded.
	Response protocol.Response
	// Attempts is the number of transmissions made.
	Attempts int
}

// SendOption configures a single Send call.
type SendOption func(*sendOptions)

type sendOptions struct {
	timeout    time.Duration
	retries    int
	strict     bool
	completion bool
}

// WithTimeout sets the wait for the response of each attempt.
func WithTimeout(d time.Duration) SendOption {
	return func(o *sendOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetries sets the number of attempts.
func WithRetries(n int) SendOption {
	return func(o *sendOptions) {
		if n > 0 {
			o.retries = n
		}
	}
}

// WithStrict overrides the controller's strict-correlation setting.
func WithStrict(strict bool) SendOption {
	return func(o *sendOptions) { o.strict = strict }
}

// WithCompletion waits for the device's correlated acknowledgment of a
// movement command instead of accepting its first frame. The device sends it
// once a relative move has completed.
func WithCompletion() SendOption {
	return func(o *sendOptions) { o.completion = true }
}

// errNoResponse ends an attempt that saw no usable response.
var errNoResponse = errors.New("stage: no response before deadline")

// Send transmits cmd and waits for its confirmation, retrying up to the
// configured count. Transmissions are paced so that consecutive frames are at
// least CommandSpacing apart, or MoveCommandSpacing before a movement command.
//
// A failure after all attempts is a *CommandError. Context cancellation is
// returned as ctx.Err().
func (c *Controller) Send(ctx context.Context, cmd protocol.Command, opts ...SendOption) (Outcome, error) {
	if !c.connState.IsConnected() {
		return Outcome{}, ErrNotConnected
	}

	return c.send(ctx, cmd, opts...)
}

func (c *Controller) send(ctx context.Context, cmd protocol.Command, opts ...SendOption) (Outcome, error) {
	so := sendOptions{
		timeout: c.cfg.commandTimeout,
		retries: c.cfg.retryCount,
		strict:  c.cfg.strict,
	}
	for _, opt := range opts {
		opt(&so)
	}

	movement := cmd.ID.IsMovement() && !so.completion
	trace := c.traced(cmd.ID)

	var lastErr error
	for attempt := 1; attempt <= so.retries; attempt++ {
		if attempt > 1 {
			c.metrics.incCommandRetryCount()
		}

		if err := c.pace(ctx, cmd.ID); err != nil {
			return Outcome{}, err
		}

		if err := c.transmit(cmd); err != nil {
			lastErr = err
			c.metrics.incTransportErrCount()
			c.logger.Warn("command transmit failed", "cmd", cmd.ID, "attempt", attempt, "retries", so.retries, "error", err)
			if err := pool.Sleep(ctx, c.cfg.retryBackoff); err != nil {
				return Outcome{}, err
			}

			continue
		}

		if trace {
			c.logger.Debug("command sent", "cmd", cmd.ID, "axes", cmd.Axes, "p1", cmd.Param1, "p2", cmd.Param2, "attempt", attempt)
		}

		outcome, err := c.await(ctx, cmd, so, movement)
		if err == nil {
			outcome.Attempts = attempt
			if trace || outcome.Kind != OutcomeDirect {
				c.logger.Debug("command confirmed", "cmd", cmd.ID, "outcome", outcome.Kind, "attempt", attempt)
			}

			return outcome, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}

		lastErr = err
		if errors.Is(err, errNoResponse) {
			c.logger.Warn("no response to command", "cmd", cmd.ID, "attempt", attempt, "retries", so.retries)
			continue
		}

		c.metrics.incTransportErrCount()
		c.logger.Warn("command receive failed", "cmd", cmd.ID, "attempt", attempt, "retries", so.retries, "error", err)
		if err := pool.Sleep(ctx, c.cfg.retryBackoff); err != nil {
			return Outcome{}, err
		}
	}

	c.metrics.incCommandFailCount()
	if trace {
		c.logger.Error("command failed", "cmd", cmd.ID, "attempts", so.retries, "error", lastErr)
	}

	return Outcome{}, &CommandError{Command: cmd, Attempts: so.retries, Err: lastErr}
}

// traced reports whether traffic of the command is logged. Status polls are
// frequent and only logged on request.
func (c *Controller) traced(id protocol.CommandID) bool {
	return id != protocol.CmdStatus || c.cfg.logStatusTraffic
}

// pace blocks until the minimum spacing since the previous transmission has
// elapsed.
func (c *Controller) pace(ctx context.Context, id protocol.CommandID) error {
	if c.lastSend.IsZero() {
		return nil
	}

	spacing := c.cfg.commandSpacing
	if id.IsMovement() {
		spacing = c.cfg.moveCommandSpacing
	}

	return pool.SleepUntil(ctx, c.lastSend.Add(spacing))
}

func (c *Controller) transmit(cmd protocol.Command) error {
	n, err := cmd.EncodeTo(c.transport.TxBuffer())
	if err != nil {
		return err
	}

	err = c.transport.Send(n)
	c.lastSend = time.Now()
	if err != nil {
		return fmt.Errorf("stage: send %s: %w", cmd.ID, err)
	}
	c.metrics.incCommandSendCount()

	return nil
}

// await polls the transport until cmd is confirmed or the attempt times out.
func (c *Controller) await(ctx context.Context, cmd protocol.Command, so sendOptions, movement bool) (Outcome, error) {
	wait := so.timeout
	if movement {
		wait = min(c.cfg.moveAckTimeout, so.timeout)
	}
	deadline := time.Now().Add(wait)

	var derived protocol.Response
	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		avail, err := c.transport.Available()
		switch {
		case errors.Is(err, transport.ErrCorruptFrame):
			c.metrics.incMalformedFrameCount()
			c.logger.Debug("dropped corrupt frame", "cmd", cmd.ID, "error", err)
		case err != nil:
			return Outcome{}, fmt.Errorf("stage: receive: %w", err)
		case avail:
			resp := c.receive()
			if movement {
				return Outcome{Kind: OutcomeAccepted, Response: resp}, nil
			}
			if resp == nil {
				break
			}
			if correlates(cmd, resp) {
				return Outcome{Kind: OutcomeDirect, Response: resp}, nil
			}

			switch r := resp.(type) {
			case protocol.ErrorResponse:
				c.metrics.incErrorFrameCount()
				c.logger.Warn("device reported error", "cmd", cmd.ID, "value", r.Value)
			case protocol.StatusResponse:
				derived = r
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if !avail {
			if err := pool.Sleep(ctx, min(c.cfg.responsePollInterval, remaining)); err != nil {
				return Outcome{}, err
			}
		}
	}

	if derived != nil && !so.strict {
		c.metrics.incDerivedOutcomeCount()
		c.logger.Info("status updates but no direct response, assuming success", "cmd", cmd.ID)

		return Outcome{Kind: OutcomeDerived, Response: derived}, nil
	}

	return Outcome{}, fmt.Errorf("%w: %s after %v", errNoResponse, cmd.ID, wait)
}

// receive decodes the frame in the receive buffer. Status-bearing frames
// update the cache. It returns nil for a malformed frame.
func (c *Controller) receive() protocol.Response {
	resp, err := protocol.DecodeResponse(c.transport.RxBuffer())
	if err != nil {
		c.metrics.incMalformedFrameCount()
		c.logger.Debug("dropped malformed frame", "error", err)

		return nil
	}

	if st, ok := resp.(protocol.StatusResponse); ok {
		c.observe(st)
	}

	return resp
}

func correlates(cmd protocol.Command, resp protocol.Response) bool {
	switch r := resp.(type) {
	case protocol.OKResponse:
		return r.Acknowledges(cmd.ID)
	case protocol.StatusResponse:
		return r.Echoes(cmd.ID)
	case protocol.PingResponse:
		return cmd.ID == protocol.CmdPing && r.Value == cmd.Param1
	default:
		return false
	}
}
