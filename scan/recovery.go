package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-xystage/internal/pool"
	"github.com/arloliu/go-xystage/protocol"
	"github.com/arloliu/go-xystage/stage"
	"github.com/arloliu/go-xystage/transport"
)

// recoveryNudge is the relative move used to free a stalled motor.
const recoveryNudge int32 = 10

// attemptRecovery tries to reach (x, y) after the direct moves failed. It
// first soft resets the motors and retries at half speed with a doubled
// tolerance, then re-homes and retries with the original tolerance. Both retries wait 1.5
// times the movement timeout.
//
// Failures of individual steps are logged and do not end the procedure; a
// lost connection or a cancelled context does. The configured speed and
// acceleration are restored before returning.
func (s *Scanner) attemptRecovery(ctx context.Context, x, y int32) (err error) {
	s.stats.incRecoveryAttempts()
	s.logger.Info("attempting position recovery", "x", x, "y", y)

	timeout := s.cfg.MovementTimeout.Std() * 3 / 2
	tolerance := s.cfg.PositionTolerance

	defer func() {
		s.restoreMotion()
		if err == nil {
			s.stats.incSuccessfulRecoveries()
		}
	}()

	// soft reset
	if err := s.step(ctx, "stop", s.ctrl.Stop(ctx)); err != nil {
		return err
	}
	if err := pool.Sleep(ctx, s.recoveryPause); err != nil {
		return exhausted(err)
	}
	if err := s.step(ctx, "enable motors", s.ctrl.EnableMotors(ctx)); err != nil {
		return err
	}
	if err := pool.Sleep(ctx, s.recoveryPause); err != nil {
		return exhausted(err)
	}

	if err := s.step(ctx, "halve speed", s.ctrl.SetSpeed(ctx,
		protocol.At(s.cfg.MotorSpeedX/2), protocol.At(s.cfg.MotorSpeedY/2))); err != nil {
		return err
	}
	if err := s.step(ctx, "halve acceleration", s.ctrl.SetAcceleration(ctx,
		protocol.At(s.cfg.MotorAccelX/2), protocol.At(s.cfg.MotorAccelY/2))); err != nil {
		return err
	}

	for _, d := range []int32{recoveryNudge, -recoveryNudge} {
		if err := s.step(ctx, "nudge", s.ctrl.MoveBy(ctx, protocol.At(d), protocol.At(d))); err != nil {
			return err
		}
		if err := pool.Sleep(ctx, s.recoveryPause); err != nil {
			return exhausted(err)
		}
	}

	moveErr := s.ctrl.MoveToWithin(ctx, protocol.At(x), protocol.At(y), timeout, 2*tolerance)
	if moveErr == nil {
		s.logger.Info("recovery successful", "x", x, "y", y)
		return nil
	}
	if fatal(ctx, moveErr) {
		return exhausted(moveErr)
	}

	// re-home
	s.logger.Warn("recovery with soft reset failed, attempting re-home", "error", moveErr)

	if err := s.ctrl.Home(ctx); err != nil {
		s.logger.Error("recovery failed", "step", "home", "error", err)
		return exhausted(err)
	}
	if err := pool.Sleep(ctx, s.homeSettle); err != nil {
		return exhausted(err)
	}

	moveErr = s.ctrl.MoveToWithin(ctx, protocol.At(x), protocol.At(y), timeout, tolerance)
	if moveErr == nil {
		s.logger.Info("recovery with re-home successful", "x", x, "y", y)
		return nil
	}

	s.logger.Error("all recovery attempts failed", "x", x, "y", y, "error", moveErr)

	return exhausted(moveErr)
}

// step logs a failed recovery step. It returns an error only when the failure
// ends the recovery.
func (s *Scanner) step(ctx context.Context, name string, err error) error {
	if err == nil {
		return nil
	}
	if fatal(ctx, err) {
		return exhausted(err)
	}
	s.logger.Warn("recovery step failed", "step", name, "error", err)

	return nil
}

// restoreMotion restores the configured speed and acceleration.
func (s *Scanner) restoreMotion() {
	if !s.ctrl.IsConnected() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()

	if err := s.ctrl.SetSpeed(ctx, protocol.At(s.cfg.MotorSpeedX), protocol.At(s.cfg.MotorSpeedY)); err != nil {
		s.logger.Warn("failed to restore speed", "error", err)
	}
	if err := s.ctrl.SetAcceleration(ctx, protocol.At(s.cfg.MotorAccelX), protocol.At(s.cfg.MotorAccelY)); err != nil {
		s.logger.Warn("failed to restore acceleration", "error", err)
	}
}

const restoreTimeout = 30 * time.Second

func exhausted(err error) error {
	return fmt.Errorf("%w: %w", ErrRecoveryExhausted, err)
}

// fatal reports whether err means the stage can no longer be driven.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, stage.ErrNotConnected) ||
		errors.Is(err, transport.ErrClosed)
}
