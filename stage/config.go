package stage

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-xystage/logger"
)

// Default command engine settings.
const (
	DefaultCommandSpacing       = 100 * time.Millisecond // Minimum gap before a non-movement command
	DefaultMoveCommandSpacing   = 500 * time.Millisecond // Minimum gap before a movement command
	DefaultCommandTimeout       = 2 * time.Second        // Wait for a correlated response
	DefaultMoveAckTimeout       = 2 * time.Second        // Wait for the first frame after a movement command
	DefaultRetryCount           = 3
	DefaultRetryBackoff         = 500 * time.Millisecond // Pause after a transport error
	DefaultResponsePollInterval = 10 * time.Millisecond  // Sleep between empty transport polls

	DefaultSettleDelay = 2 * time.Second // Board auto-reset after the port opens
	DefaultPingTimeout = 2 * time.Second
)

// Default motion planner settings.
const (
	DefaultMovementTimeout       = 5 * time.Second // Small relative moves acknowledged on completion
	DefaultSegmentTimeout        = 5 * time.Second
	DefaultTolerance       int32 = 5

	DefaultLargeMoveThreshold    int32 = 40
	DefaultDiagonalSegmentLength int32 = 20
	DefaultAxisSegmentLength     int32 = 30
	DefaultMoveByThreshold       int32 = 75

	DefaultPositionPollInterval = 500 * time.Millisecond
	DefaultWaitLoopInterval     = 50 * time.Millisecond
	DefaultStatusCheckInterval  = time.Second

	DefaultStableDelta int32 = 2
)

// Default shutdown settings.
const (
	DefaultShutdownPause = 500 * time.Millisecond
)

// Limits.
const (
	MaxRetryCount = 10
	MaxTolerance  = 10000
)

// Config holds the configuration of a Controller.
type Config struct {
	commandSpacing       time.Duration
	moveCommandSpacing   time.Duration
	commandTimeout       time.Duration
	moveAckTimeout       time.Duration
	retryCount           int
	retryBackoff         time.Duration
	responsePollInterval time.Duration

	settleDelay time.Duration
	pingTimeout time.Duration

	// strict disables derived success for non-movement commands.
	strict bool

	movementTimeout       time.Duration
	segmentTimeout        time.Duration
	tolerance             int32
	largeMoveThreshold    int32
	diagonalSegmentLength int32
	axisSegmentLength     int32
	moveByThreshold       int32

	positionPollInterval time.Duration
	waitLoopInterval     time.Duration
	statusCheckInterval  time.Duration
	settleAcceptance     bool

	autoDisableOnClose  bool
	autoJoystickOnClose bool
	shutdownPause       time.Duration

	logStatusTraffic bool
	exitHook         bool

	logger logger.Logger
}

// NewConfig creates a controller configuration.
//
// opts are functional options applied in order; see With* functions.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		commandSpacing:        DefaultCommandSpacing,
		moveCommandSpacing:    DefaultMoveCommandSpacing,
		commandTimeout:        DefaultCommandTimeout,
		moveAckTimeout:        DefaultMoveAckTimeout,
		retryCount:            DefaultRetryCount,
		retryBackoff:          DefaultRetryBackoff,
		responsePollInterval:  DefaultResponsePollInterval,
		settleDelay:           DefaultSettleDelay,
		pingTimeout:           DefaultPingTimeout,
		movementTimeout:       DefaultMovementTimeout,
		segmentTimeout:        DefaultSegmentTimeout,
		tolerance:             DefaultTolerance,
		largeMoveThreshold:    DefaultLargeMoveThreshold,
		diagonalSegmentLength: DefaultDiagonalSegmentLength,
		axisSegmentLength:     DefaultAxisSegmentLength,
		moveByThreshold:       DefaultMoveByThreshold,
		positionPollInterval:  DefaultPositionPollInterval,
		waitLoopInterval:      DefaultWaitLoopInterval,
		statusCheckInterval:   DefaultStatusCheckInterval,
		settleAcceptance:      true,
		autoDisableOnClose:    true,
		autoJoystickOnClose:   true,
		shutdownPause:         DefaultShutdownPause,
		exitHook:              true,
		logger:                logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// CommandSpacing returns the minimum gap before a non-movement command.
func (cfg *Config) CommandSpacing() time.Duration { return cfg.commandSpacing }

// MoveCommandSpacing returns the minimum gap before a movement command.
func (cfg *Config) MoveCommandSpacing() time.Duration { return cfg.moveCommandSpacing }

// CommandTimeout returns the default wait for a correlated response.
func (cfg *Config) CommandTimeout() time.Duration { return cfg.commandTimeout }

// MoveAckTimeout returns the wait for the first frame after a movement command.
func (cfg *Config) MoveAckTimeout() time.Duration { return cfg.moveAckTimeout }

// RetryCount returns the number of attempts per command.
func (cfg *Config) RetryCount() int { return cfg.retryCount }

// RetryBackoff returns the pause after a transport error.
func (cfg *Config) RetryBackoff() time.Duration { return cfg.retryBackoff }

// SettleDelay returns the wait between opening the transport and the first ping.
func (cfg *Config) SettleDelay() time.Duration { return cfg.settleDelay }

// Strict reports whether derived success is disabled.
func (cfg *Config) Strict() bool { return cfg.strict }

// MovementTimeout returns the timeout of small relative moves.
func (cfg *Config) MovementTimeout() time.Duration { return cfg.movementTimeout }

// SegmentTimeout returns the arrival wait of a single move segment.
func (cfg *Config) SegmentTimeout() time.Duration { return cfg.segmentTimeout }

// Tolerance returns the arrival tolerance in steps.
func (cfg *Config) Tolerance() int32 { return cfg.tolerance }

// LargeMoveThreshold returns the per-axis displacement above which moves are segmented.
func (cfg *Config) LargeMoveThreshold() int32 { return cfg.largeMoveThreshold }

// PositionPollInterval returns the interval between position samples.
func (cfg *Config) PositionPollInterval() time.Duration { return cfg.positionPollInterval }

// SettleAcceptance reports whether a position that stayed stable for five
// samples is accepted after the motors stopped off target.
func (cfg *Config) SettleAcceptance() bool { return cfg.settleAcceptance }

// AutoDisableOnClose reports whether Close disables the motors.
func (cfg *Config) AutoDisableOnClose() bool { return cfg.autoDisableOnClose }

// AutoJoystickOnClose reports whether Close returns the device to joystick mode.
func (cfg *Config) AutoJoystickOnClose() bool { return cfg.autoJoystickOnClose }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

func nonNegative(name string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("stage: %s %v must not be negative", name, d)
	}

	return nil
}

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("stage: %s %v must be positive", name, d)
	}

	return nil
}

// WithCommandSpacing sets the minimum gaps enforced before non-movement and
// movement commands.
func WithCommandSpacing(command, move time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := nonNegative("command spacing", command); err != nil {
			return err
		}
		if err := nonNegative("move command spacing", move); err != nil {
			return err
		}
		cfg.commandSpacing = command
		cfg.moveCommandSpacing = move

		return nil
	})
}

// WithCommandTimeout sets the default wait for a correlated response.
func WithCommandTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positive("command timeout", d); err != nil {
			return err
		}
		cfg.commandTimeout = d

		return nil
	})
}

// WithMoveAckTimeout sets the wait for the first frame after a movement command.
func WithMoveAckTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positive("move ack timeout", d); err != nil {
			return err
		}
		cfg.moveAckTimeout = d

		return nil
	})
}

// WithRetryCount sets the number of attempts per command, in [1, 10].
func WithRetryCount(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxRetryCount {
			return fmt.Errorf("stage: retry count %d out of range [1, %d]", n, MaxRetryCount)
		}
		cfg.retryCount = n

		return nil
	})
}

// WithRetryBackoff sets the pause after a transport error.
func WithRetryBackoff(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := nonNegative("retry backoff", d); err != nil {
			return err
		}
		cfg.retryBackoff = d

		return nil
	})
}

// WithResponsePollInterval sets the sleep between empty transport polls.
func WithResponsePollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positive("response poll interval", d); err != nil {
			return err
		}
		cfg.responsePollInterval = d

		return nil
	})
}

// WithSettleDelay sets the wait between opening the transport and the first ping.
func WithSettleDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := nonNegative("settle delay", d); err != nil {
			return err
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithPingTimeout sets the wait for the connection ping echo.
func WithPingTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positive("ping timeout", d); err != nil {
			return err
		}
		cfg.pingTimeout = d

		return nil
	})
}

// WithStrictCorrelation disables derived success: a non-movement command only
// succeeds on a correlated response. Disabled by default.
func WithStrictCorrelation(strict bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.strict = strict
		return nil
	})
}

// WithMovementTimeout sets the timeout of small relative moves, which the
// device acknowledges on completion.
func WithMovementTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positive("movement timeout", d); err != nil {
			return err
		}
		cfg.movementTimeout = d

		return nil
	})
}

// WithSegmentTimeout sets the arrival wait of a single move segment.
func WithSegmentTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positive("segment timeout", d); err != nil {
			return err
		}
		cfg.segmentTimeout = d

		return nil
	})
}

// WithTolerance sets the arrival tolerance in steps.
func WithTolerance(steps int32) Option {
	return optFunc(func(cfg *Config) error {
		if steps < 0 || steps > MaxTolerance {
			return fmt.Errorf("stage: tolerance %d out of range [0, %d]", steps, MaxTolerance)
		}
		cfg.tolerance = steps

		return nil
	})
}

// WithSegmentation sets the large-move threshold and the segment lengths used
// for moves on both axes and on a single axis.
func WithSegmentation(threshold, diagonal, single int32) Option {
	return optFunc(func(cfg *Config) error {
		if threshold <= 0 || diagonal <= 0 || single <= 0 {
			return fmt.Errorf("stage: segmentation values must be positive: threshold=%d diagonal=%d single=%d",
				threshold, diagonal, single)
		}
		cfg.largeMoveThreshold = threshold
		cfg.diagonalSegmentLength = diagonal
		cfg.axisSegmentLength = single

		return nil
	})
}

// WithMoveByThreshold sets the relative displacement above which MoveBy is
// planned as a segmented absolute move.
func WithMoveByThreshold(steps int32) Option {
	return optFunc(func(cfg *Config) error {
		if steps <= 0 {
			return fmt.Errorf("stage: move-by threshold %d must be positive", steps)
		}
		cfg.moveByThreshold = steps

		return nil
	})
}

// WithPolling sets the arrival wait timing: the interval between position
// samples, the loop sleep and the minimum gap between running-state checks.
func WithPolling(position, loop, statusCheck time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := positive("position poll interval", position); err != nil {
			return err
		}
		if err := positive("wait loop interval", loop); err != nil {
			return err
		}
		if err := nonNegative("status check interval", statusCheck); err != nil {
			return err
		}
		cfg.positionPollInterval = position
		cfg.waitLoopInterval = loop
		cfg.statusCheckInterval = statusCheck

		return nil
	})
}

// WithSettleAcceptance controls whether a position that stayed stable for
// five samples is accepted after the motors stopped off target. Enabled by
// default.
func WithSettleAcceptance(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.settleAcceptance = enabled
		return nil
	})
}

// WithCloseBehavior sets whether Close disables the motors and returns the
// device to joystick mode. Both are enabled by default.
func WithCloseBehavior(disableMotors, joystickMode bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.autoDisableOnClose = disableMotors
		cfg.autoJoystickOnClose = joystickMode

		return nil
	})
}

// WithShutdownPause sets the pause between shutdown steps. The pause after
// disabling the motors is twice as long.
func WithShutdownPause(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := nonNegative("shutdown pause", d); err != nil {
			return err
		}
		cfg.shutdownPause = d

		return nil
	})
}

// WithStatusTrafficLogging enables debug logging of status polls, which are
// otherwise left out of the command log.
func WithStatusTrafficLogging(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.logStatusTraffic = enabled
		return nil
	})
}

// WithoutExitHook keeps the controller out of the exithook registry.
func WithoutExitHook() Option {
	return optFunc(func(cfg *Config) error {
		cfg.exitHook = false
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("stage: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
