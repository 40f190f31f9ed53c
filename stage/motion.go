package stage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/arloliu/go-xystage/internal/pool"
	"github.com/arloliu/go-xystage/protocol"
)

// Arrival tells how a segment wait concluded.
type Arrival uint8

const (
	// ArrivedInTolerance means a sample was within the requested tolerance.
	ArrivedInTolerance Arrival = iota + 1
	// ArrivedWidened means a stable sample was within the widened tolerance.
	ArrivedWidened
	// ArrivedSettled means the motors stopped off target after five stable
	// samples and the position was accepted as it is.
	ArrivedSettled
)

func (a Arrival) String() string {
	switch a {
	case ArrivedInTolerance:
		return "in-tolerance"
	case ArrivedWidened:
		return "widened"
	case ArrivedSettled:
		return "settled"
	default:
		return "none"
	}
}

// Stable sample counts driving the arrival wait.
const (
	minStableForWidened = 2
	minStableForCheck   = 3
	minStableForSettled = 5
)

// Segmentation controls how large moves are split.
type Segmentation struct {
	// Threshold is the per-axis displacement above which a move is split.
	Threshold int32
	// Diagonal is the segment length of moves displacing both axes.
	Diagonal int32
	// Single is the segment length of moves displacing one axis.
	Single int32
}

// Segmentation returns the configured segmentation.
func (cfg *Config) Segmentation() Segmentation {
	return Segmentation{
		Threshold: cfg.largeMoveThreshold,
		Diagonal:  cfg.diagonalSegmentLength,
		Single:    cfg.axisSegmentLength,
	}
}

// PlanSegments returns the waypoints of a move from `from` to target.
//
// A move that displaces no axis by more than the threshold is a single
// waypoint. Otherwise the straight path is split into max(2, round(d/len))
// segments, where d is the Euclidean distance and len the segment length for
// the number of displaced axes. Intermediate waypoints are truncated toward
// zero; the last waypoint is always the exact target. Unset axes stay unset.
func PlanSegments(from Position, target Waypoint, seg Segmentation) []Waypoint {
	var dx, dy int64
	if target.X.Set {
		dx = int64(target.X.Value) - int64(from.X)
	}
	if target.Y.Set {
		dy = int64(target.Y.Value) - int64(from.Y)
	}

	adx, ady := abs64(dx), abs64(dy)
	if adx <= int64(seg.Threshold) && ady <= int64(seg.Threshold) {
		return []Waypoint{target}
	}

	length := seg.Single
	if adx > 0 && ady > 0 {
		length = seg.Diagonal
	}

	dist := math.Hypot(float64(dx), float64(dy))
	n := max(2, int(math.Round(dist/float64(length))))

	stepX := float64(dx) / float64(n)
	stepY := float64(dy) / float64(n)

	waypoints := make([]Waypoint, 0, n)
	for i := 1; i < n; i++ {
		var wp Waypoint
		if target.X.Set {
			wp.X = protocol.At(int32(float64(from.X) + stepX*float64(i)))
		}
		if target.Y.Set {
			wp.Y = protocol.At(int32(float64(from.Y) + stepY*float64(i)))
		}
		waypoints = append(waypoints, wp)
	}

	return append(waypoints, target)
}

// WidenedTolerance returns the tolerance applied after stable consecutive
// off-target samples.
func WidenedTolerance(tolerance int32, stable int) float64 {
	return float64(tolerance) * (1 + float64(stable)*0.5)
}

// MoveTo moves to an absolute position with the configured segment timeout
// and tolerance. Unset axes are left where they are.
func (c *Controller) MoveTo(ctx context.Context, x, y protocol.Axis) error {
	return c.MoveToWithin(ctx, x, y, c.cfg.segmentTimeout, c.cfg.tolerance)
}

// MoveToWithin moves to an absolute position, waiting up to timeout for each
// segment to arrive within tolerance. Motors are enabled first if needed.
// A failed segment aborts the move with a *MoveError.
func (c *Controller) MoveToWithin(ctx context.Context, x, y protocol.Axis, timeout time.Duration, tolerance int32) error {
	if !c.connState.IsConnected() {
		return ErrNotConnected
	}

	target := Waypoint{X: x, Y: y}
	if !x.Set && !y.Set {
		return nil
	}

	from, err := c.Position(ctx)
	if err != nil {
		return err
	}

	if err := c.ensureEnabled(ctx); err != nil {
		return err
	}

	segments := PlanSegments(from, target, c.cfg.Segmentation())
	if len(segments) > 1 {
		c.logger.Info("breaking large move into segments", "from", from, "to", target, "segments", len(segments))
	}

	for i, wp := range segments {
		c.metrics.incSegmentCount()
		c.logger.Debug("moving to segment", "segment", i+1, "segments", len(segments), "target", wp)

		_, err := c.Send(ctx, protocol.AxisCommand(protocol.CmdMoveAbsolute, wp.X, wp.Y),
			WithTimeout(c.cfg.commandTimeout))
		if err != nil {
			return &MoveError{Segment: i + 1, Segments: len(segments), Target: wp, Err: err}
		}

		if _, err := c.WaitForSegmentCompletion(ctx, wp.X, wp.Y, timeout, tolerance); err != nil {
			return &MoveError{Segment: i + 1, Segments: len(segments), Target: wp, Err: err}
		}
	}

	return nil
}

// MoveBy moves relative to the current position. Displacements beyond the
// move-by threshold are planned as a segmented absolute move; smaller ones are
// sent as one relative command whose completion the device acknowledges.
func (c *Controller) MoveBy(ctx context.Context, dx, dy protocol.Axis) error {
	if !c.connState.IsConnected() {
		return ErrNotConnected
	}
	if !dx.Set && !dy.Set {
		return nil
	}

	limit := int64(c.cfg.moveByThreshold)
	if abs64(int64(dx.Or(0))) > limit || abs64(int64(dy.Or(0))) > limit {
		from, err := c.Position(ctx)
		if err != nil {
			return err
		}

		return c.MoveTo(ctx, dx.Add(from.X), dy.Add(from.Y))
	}

	if err := c.ensureEnabled(ctx); err != nil {
		return err
	}

	_, err := c.Send(ctx, protocol.AxisCommand(protocol.CmdMoveRelative, dx, dy),
		WithTimeout(c.cfg.movementTimeout), WithCompletion())

	return err
}

func (c *Controller) ensureEnabled(ctx context.Context) error {
	if c.state.MotorsEnabled {
		return nil
	}

	c.logger.Debug("motors not enabled, enabling before movement")
	if err := c.EnableMotors(ctx); err != nil {
		return fmt.Errorf("stage: enable motors before move: %w", err)
	}

	return nil
}

// WaitForSegmentCompletion polls the position until it arrives at the target.
//
// The position is sampled every PositionPollInterval. A sample is stable when
// neither axis moved by two steps or more since the previous one. The wait
// succeeds as soon as a sample is within tolerance, or within the widened
// tolerance after at least two stable samples. From three stable samples on,
// the running state is checked at most once per StatusCheckInterval: when both
// motors have stopped off target the wait fails with ErrMotorsStopped, unless
// five stable samples have accumulated and settle acceptance is enabled.
// Hitting the timeout fails with ErrPositionTimeout.
//
// Only samples backed by a status frame received since the previous sample
// are considered. Unset axes are not compared.
func (c *Controller) WaitForSegmentCompletion(ctx context.Context, x, y protocol.Axis, timeout time.Duration, tolerance int32) (Arrival, error) {
	target := Waypoint{X: x, Y: y}
	deadline := time.Now().Add(timeout)

	var (
		lastPoll, lastCheck time.Time
		lastFrame           uint64
		last                Position
		haveLast            bool
		stable              int
	)

	c.logger.Debug("waiting for position", "target", target, "tolerance", tolerance)

	for {
		now := time.Now()
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			break
		}

		if now.Sub(lastPoll) >= c.cfg.positionPollInterval {
			lastPoll = now

			if _, err := c.queryStatus(ctx, WithTimeout(min(c.cfg.commandTimeout, remaining)), WithRetries(1)); err != nil {
				return 0, err
			}

			if st := c.state; c.statusFrames != lastFrame {
				lastFrame = c.statusFrames
				pos := st.Position

				isStable := haveLast &&
					abs64(int64(pos.X)-int64(last.X)) < int64(DefaultStableDelta) &&
					abs64(int64(pos.Y)-int64(last.Y)) < int64(DefaultStableDelta)

				if stable%2 == 0 {
					c.logger.Debug("position sample", "position", pos, "target", target, "stable", isStable)
				}

				if within(pos, target, float64(tolerance)) {
					c.logger.Debug("reached position", "position", pos, "target", target)
					return ArrivedInTolerance, nil
				}

				if isStable {
					stable++

					wide := WidenedTolerance(tolerance, stable)
					if stable >= minStableForWidened && within(pos, target, wide) {
						c.logger.Info("position close enough to target", "position", pos, "target", target, "tolerance", wide)
						return ArrivedWidened, nil
					}

					if stable >= minStableForCheck && now.Sub(lastCheck) >= c.cfg.statusCheckInterval {
						lastCheck = now
						if !st.Running() {
							c.logger.Warn("motors stopped off target", "position", pos, "target", target)
							if stable >= minStableForSettled && c.cfg.settleAcceptance {
								c.logger.Info("accepting position after stable readings", "position", pos, "stable", stable)
								return ArrivedSettled, nil
							}

							return 0, fmt.Errorf("%w: at %s, target %s", ErrMotorsStopped, pos, target)
						}
					}
				} else {
					stable = 0
				}

				last = pos
				haveLast = true
			}
		}

		if err := pool.Sleep(ctx, min(c.cfg.waitLoopInterval, time.Until(deadline))); err != nil {
			return 0, err
		}
	}

	c.logger.Warn("timeout waiting for position", "target", target, "timeout", timeout)

	return 0, fmt.Errorf("%w: target %s after %v", ErrPositionTimeout, target, timeout)
}

// within reports whether every set axis of target is within tol of pos.
func within(pos Position, target Waypoint, tol float64) bool {
	if target.X.Set && math.Abs(float64(pos.X)-float64(target.X.Value)) > tol {
		return false
	}
	if target.Y.Set && math.Abs(float64(pos.Y)-float64(target.Y.Value)) > tol {
		return false
	}

	return true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
