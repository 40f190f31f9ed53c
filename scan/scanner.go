package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-xystage/internal/pool"
	"github.com/arloliu/go-xystage/logger"
	"github.com/arloliu/go-xystage/protocol"
	"github.com/arloliu/go-xystage/stage"
	"github.com/arloliu/go-xystage/transport"
)

// Default scanner pauses.
const (
	DefaultRecoveryPause = 500 * time.Millisecond // Between recovery steps
	DefaultHomeSettle    = time.Second            // After re-homing during recovery
	DefaultSetupPause    = 500 * time.Millisecond // After enabling motors at scan start
	DefaultShutdownPause = 500 * time.Millisecond // Between scan shutdown steps
)

// Sample is the data acquisition request of a scan point. X and Y are the
// actual motor position after arrival.
type Sample struct {
	X   int32
	Y   int32
	Col int
	Row int
}

// DataFunc acquires data at a scan point. It runs synchronously on the scan;
// a returned error fails the point.
type DataFunc func(ctx context.Context, s Sample) error

// Scanner runs raster scans on a stage controller.
type Scanner struct {
	ctrl   *stage.Controller
	cfg    *Config
	logger logger.Logger

	state    AtomicState
	grid     Grid
	progress Progress
	stats    ErrorStats

	recoveryPause time.Duration
	homeSettle    time.Duration
	setupPause    time.Duration
	shutdownPause time.Duration
	onProgress    func(Report)
}

// Option configures a Scanner.
type Option interface {
	apply(*Scanner) error
}

type optFunc func(*Scanner) error

func (f optFunc) apply(s *Scanner) error { return f(s) }

func pauseOption(name string, d time.Duration, set func(*Scanner, time.Duration)) Option {
	return optFunc(func(s *Scanner) error {
		if d < 0 {
			return fmt.Errorf("scan: %s %v must not be negative", name, d)
		}
		set(s, d)

		return nil
	})
}

// WithRecoveryPause sets the pause between recovery steps.
func WithRecoveryPause(d time.Duration) Option {
	return pauseOption("recovery pause", d, func(s *Scanner, d time.Duration) { s.recoveryPause = d })
}

// WithHomeSettle sets the pause after re-homing during recovery.
func WithHomeSettle(d time.Duration) Option {
	return pauseOption("home settle", d, func(s *Scanner, d time.Duration) { s.homeSettle = d })
}

// WithSetupPause sets the pause after enabling the motors at scan start.
func WithSetupPause(d time.Duration) Option {
	return pauseOption("setup pause", d, func(s *Scanner, d time.Duration) { s.setupPause = d })
}

// WithShutdownPause sets the pause between scan shutdown steps. The pause
// after disabling the motors is twice as long.
func WithShutdownPause(d time.Duration) Option {
	return pauseOption("shutdown pause", d, func(s *Scanner, d time.Duration) { s.shutdownPause = d })
}

// WithProgressHandler registers a function called after every completed point.
func WithProgressHandler(fn func(Report)) Option {
	return optFunc(func(s *Scanner) error {
		s.onProgress = fn
		return nil
	})
}

// WithLogger sets the logger. The controller's logger is used by default.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(s *Scanner) error {
		if l == nil {
			return errors.New("scan: logger must not be nil")
		}
		s.logger = l

		return nil
	})
}

// New creates an idle scanner. A nil cfg uses DefaultConfig.
func New(ctrl *stage.Controller, cfg *Config, opts ...Option) (*Scanner, error) {
	if ctrl == nil {
		return nil, ErrNilController
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scanner{
		ctrl:          ctrl,
		cfg:           cfg,
		logger:        ctrl.Config().GetLogger(),
		recoveryPause: DefaultRecoveryPause,
		homeSettle:    DefaultHomeSettle,
		setupPause:    DefaultSetupPause,
		shutdownPause: DefaultShutdownPause,
	}
	for _, opt := range opts {
		if err := opt.apply(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "scan")

	return s, nil
}

// Controller returns the stage controller.
func (s *Scanner) Controller() *stage.Controller { return s.ctrl }

// Config returns the scan configuration.
func (s *Scanner) Config() *Config { return s.cfg }

// State returns the scanner state.
func (s *Scanner) State() State { return s.state.Get() }

// Grid returns the grid of the initialized scan.
func (s *Scanner) Grid() Grid { return s.grid }

// Progress returns a copy of the scan progress.
func (s *Scanner) Progress() Progress { return s.progress.Clone() }

// Stats returns the error counters.
func (s *Scanner) Stats() ErrorStatsSnapshot { return s.stats.Snapshot() }

// Connect connects the controller.
func (s *Scanner) Connect(ctx context.Context) error { return s.ctrl.Connect(ctx) }

// Disconnect disconnects the controller without touching the motors.
func (s *Scanner) Disconnect() error { return s.ctrl.Disconnect() }

// Close releases the hardware through the controller's safe shutdown.
func (s *Scanner) Close() error { return s.ctrl.Close() }

// InitializeScan prepares a scan of g. Zero fields of g take the
// configuration defaults. The controller is connected if needed, then the
// device is switched to serial mode, the motors are enabled, speed and
// acceleration are set and the current position becomes the origin. Any
// failure leaves the scanner Idle.
func (s *Scanner) InitializeScan(ctx context.Context, g Grid) error {
	if s.state.Get() == RunningState {
		return ErrScanRunning
	}

	g = g.withDefaults(s.cfg)
	if err := g.Validate(); err != nil {
		return err
	}

	s.state.Set(IdleState)
	s.logger.Info("initializing scan", "x_steps", g.XSteps, "y_steps", g.YSteps, "x_range", g.XRange, "y_range", g.YRange)

	if !s.ctrl.IsConnected() {
		s.logger.Warn("not connected to stage, connecting")
		if err := s.ctrl.Connect(ctx); err != nil {
			return fmt.Errorf("scan: initialize: connect: %w", err)
		}
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"switch to serial mode", func() error { return s.ctrl.SetMode(ctx, protocol.ModeSerial) }},
		{"enable motors", func() error { return s.ctrl.EnableMotors(ctx) }},
		{"set speed", func() error {
			return s.ctrl.SetSpeed(ctx, protocol.At(s.cfg.MotorSpeedX), protocol.At(s.cfg.MotorSpeedY))
		}},
		{"set acceleration", func() error {
			return s.ctrl.SetAcceleration(ctx, protocol.At(s.cfg.MotorAccelX), protocol.At(s.cfg.MotorAccelY))
		}},
		{"home", func() error { return s.ctrl.Home(ctx) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			s.logger.Error("scan initialization failed", "step", step.name, "error", err)
			return fmt.Errorf("scan: initialize: %s: %w", step.name, err)
		}
	}

	s.grid = g
	s.progress = newProgress(g.Points())
	s.state.Set(InitializedState)
	s.logger.Info("scan initialized")

	return nil
}

// PerformOption configures a PerformScan call.
type PerformOption func(*performOptions)

type performOptions struct {
	delay  time.Duration
	resume bool
}

// WithDelay overrides the stabilization delay before each acquisition.
func WithDelay(d time.Duration) PerformOption {
	return func(o *performOptions) {
		if d >= 0 {
			o.delay = d
		}
	}
}

// WithResume skips the points completed by earlier runs.
func WithResume() PerformOption {
	return func(o *performOptions) { o.resume = true }
}

// PerformScan visits the grid in snake order. At every point it moves the
// stage with MoveToPosition, reads back the actual position, waits the
// stabilization delay and calls fn, which may be nil.
//
// A point that cannot be completed halts the scan with a *PointError and
// leaves it Failed; a cancelled context leaves it Paused. Both keep the
// progress for WithResume. Whatever the outcome, the motors are stopped and
// disabled and the device is returned to joystick mode before returning.
func (s *Scanner) PerformScan(ctx context.Context, fn DataFunc, opts ...PerformOption) error {
	po := performOptions{delay: s.cfg.StabilizationDelay.Std()}
	for _, opt := range opts {
		opt(&po)
	}

	if !s.state.ToRunning() {
		if s.state.Get() == RunningState {
			return ErrScanRunning
		}
		return ErrNotInitialized
	}

	plan := BuildPlan(s.grid)
	if po.resume {
		remaining := plan[:0]
		for _, pt := range plan {
			if !s.progress.IsDone(pt.Index()) {
				remaining = append(remaining, pt)
			}
		}
		plan = remaining
	} else {
		clear(s.progress.Done)
	}
	s.progress.CompletedPoints = 0
	s.progress.TotalPoints = len(plan)

	s.logger.Info("starting scan", "points", len(plan), "resume", po.resume)

	err := s.run(ctx, plan, fn, po.delay)
	s.shutdown()

	switch {
	case err == nil:
		s.state.Finish(CompletedState)
		s.logger.Info("scan completed", "completed", s.progress.CompletedPoints, "total", s.progress.TotalPoints)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		s.state.Finish(PausedState)
		s.logger.Warn("scan interrupted", "completed", s.progress.CompletedPoints, "total", s.progress.TotalPoints)
	default:
		s.state.Finish(FailedState)
		s.logger.Error("scan failed", "completed", s.progress.CompletedPoints, "total", s.progress.TotalPoints, "error", err)
	}

	return err
}

func (s *Scanner) run(ctx context.Context, plan []GridPoint, fn DataFunc, delay time.Duration) error {
	if err := s.ctrl.SetMode(ctx, protocol.ModeSerial); err != nil {
		return fmt.Errorf("scan: switch to serial mode: %w", err)
	}
	if err := s.ctrl.EnableMotors(ctx); err != nil {
		return fmt.Errorf("scan: enable motors: %w", err)
	}
	if err := pool.Sleep(ctx, s.setupPause); err != nil {
		return err
	}

	start := time.Now()
	for _, pt := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.visit(ctx, pt, fn, delay); err != nil {
			s.progress.Current = pt.Index()
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return &PointError{Point: pt, Err: err}
		}

		report := newReport(pt, s.ctrl.State().Position, s.progress, time.Since(start))
		s.logger.Info("scan progress",
			"completed", report.Completed, "total", report.Total,
			"percent", fmt.Sprintf("%.1f", report.Percent), "eta", report.ETA.Round(time.Second))
		if s.onProgress != nil {
			s.onProgress(report)
		}
	}

	return nil
}

func (s *Scanner) visit(ctx context.Context, pt GridPoint, fn DataFunc, delay time.Duration) error {
	s.logger.Debug("moving to scan point", "x", pt.X, "y", pt.Y, "index", pt.Index())

	if err := s.MoveToPosition(ctx, pt.X, pt.Y); err != nil {
		return err
	}

	actual, err := s.ctrl.Position(ctx)
	if err != nil {
		return err
	}
	s.logger.Debug("scan point reached", "position", actual)

	if err := pool.Sleep(ctx, delay); err != nil {
		return err
	}

	if fn != nil {
		if err := fn(ctx, Sample{X: actual.X, Y: actual.Y, Col: pt.Col, Row: pt.Row}); err != nil {
			return fmt.Errorf("scan: acquire data: %w", err)
		}
	}
	s.progress.complete(pt)

	return nil
}

// MoveToPosition moves the stage to (x, y) with up to RetryAttempts direct
// moves. When they all fail and recovery is enabled, the recovery procedure
// runs once; its failure is reported as ErrRecoveryExhausted.
func (s *Scanner) MoveToPosition(ctx context.Context, x, y int32) error {
	attempts := s.cfg.RetryAttempts

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := s.ctrl.MoveTo(ctx, protocol.At(x), protocol.At(y))
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = err
		if errors.Is(err, stage.ErrCommandTimeout) || errors.Is(err, transport.ErrClosed) {
			s.stats.incCommunicationErrors()
		}
		if errors.Is(err, stage.ErrNotConnected) {
			break
		}

		s.logger.Warn("move to scan position failed", "x", x, "y", y, "attempt", attempt, "attempts", attempts, "error", err)

		if attempt == attempts && s.cfg.RecoveryEnabled {
			err := s.attemptRecovery(ctx, x, y)
			if err == nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			lastErr = err
		}
	}

	s.stats.incPositioningErrors()

	return lastErr
}

// shutdown stops and disables the motors and returns the device to joystick
// mode. Each step runs regardless of earlier failures.
func (s *Scanner) shutdown() {
	if !s.ctrl.IsConnected() {
		return
	}

	ctx := context.Background()
	s.logger.Info("performing scan completion shutdown")

	s.guard("stop", s.ctrl.Stop(ctx))
	_ = pool.Sleep(ctx, s.shutdownPause)

	s.guard("disable motors", s.ctrl.DisableMotors(ctx))
	_ = pool.Sleep(ctx, 2*s.shutdownPause)

	s.guard("switch to joystick mode", s.ctrl.SetMode(ctx, protocol.ModeJoystick))
}

func (s *Scanner) guard(step string, err error) {
	if err != nil {
		s.logger.Warn("scan shutdown step failed", "step", step, "error", err)
	}
}
