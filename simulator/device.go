// Package simulator provides an in-process stage device that implements
// transport.Transport.
//
// The Device decodes command frames written through the transport, applies
// them to a simple motor model and queues the response frames the firmware
// would send. It records every command with the time it was sent, so tests can
// assert ordering and pacing. Knobs make it misbehave the way real hardware
// does: ignoring status queries, streaming unsolicited status frames, stalling
// motors, corrupt frames and failing writes.
//
// A Device is not safe for concurrent use.
package simulator

import (
	"fmt"
	"time"

	"github.com/arloliu/go-xystage/internal/queue"
	"github.com/arloliu/go-xystage/protocol"
	"github.com/arloliu/go-xystage/transport"
)

const bufferSize = 254

// Sent is a command received by the device.
type Sent struct {
	Command protocol.Command
	At      time.Time
}

// Handler intercepts a command before the motor model sees it. When handled
// is true the returned responses are queued instead of the default replies
// and the model is not updated.
type Handler func(cmd protocol.Command) (replies []protocol.Response, handled bool)

type frame struct {
	data    []byte
	corrupt bool
}

// Device is a simulated two-axis stage controller.
type Device struct {
	opened  bool
	openErr error

	failSends int
	sendErr   error

	tx    [bufferSize]byte
	rx    [bufferSize]byte
	rxLen int
	out   *queue.Queue[frame]

	sent    []Sent
	handler Handler
	now     func() time.Time

	x, y             int32
	targetX, targetY int32
	speed            [2]int32
	accel            [2]int32
	enabled          bool
	mode             protocol.Mode
	seq              uint16

	motionStep   int32
	stalled      bool
	ignoreStatus bool
	unsolicited  int
}

var _ transport.Transport = (*Device)(nil)

// Option configures a Device.
type Option func(*Device)

// WithPosition sets the initial motor position.
func WithPosition(x, y int32) Option {
	return func(d *Device) {
		d.x, d.y = x, y
		d.targetX, d.targetY = x, y
	}
}

// WithMotionStep makes motors advance by step on each status query instead
// of reaching their target immediately.
func WithMotionStep(step int32) Option {
	return func(d *Device) { d.motionStep = step }
}

// WithIgnoreStatus makes the device never send status frames. Movement
// commands are answered with OK frames instead.
func WithIgnoreStatus() Option {
	return func(d *Device) { d.ignoreStatus = true }
}

// WithUnsolicitedStatus queues n uncorrelated status frames ahead of every
// reply.
func WithUnsolicitedStatus(n int) Option {
	return func(d *Device) { d.unsolicited = n }
}

// WithHandler installs a command interceptor.
func WithHandler(h Handler) Option {
	return func(d *Device) { d.handler = h }
}

// WithClock replaces the clock used to timestamp sent commands.
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// New creates a closed device in joystick mode with motors disabled.
func New(opts ...Option) *Device {
	d := &Device{
		out:   queue.New[frame](16),
		now:   time.Now,
		speed: [2]int32{1000, 1000},
		accel: [2]int32{1000, 1000},
		mode:  protocol.ModeJoystick,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Open implements transport.Transport.
func (d *Device) Open() error {
	if d.openErr != nil {
		return d.openErr
	}
	d.opened = true

	return nil
}

// Close implements transport.Transport.
func (d *Device) Close() error {
	d.opened = false
	d.out.Reset()
	d.rxLen = 0

	return nil
}

// TxBuffer implements transport.Transport.
func (d *Device) TxBuffer() []byte { return d.tx[:] }

// RxBuffer implements transport.Transport.
func (d *Device) RxBuffer() []byte { return d.rx[:d.rxLen] }

// Send implements transport.Transport. The command is processed immediately
// and its replies are queued for Available.
func (d *Device) Send(n int) error {
	if !d.opened {
		return transport.ErrClosed
	}
	if n <= 0 || n > bufferSize {
		return fmt.Errorf("%w: %d bytes", transport.ErrPayloadTooLarge, n)
	}
	if d.failSends > 0 {
		d.failSends--
		return d.sendErr
	}

	cmd, err := protocol.DecodeCommand(d.tx[:n])
	if err != nil {
		d.queue(protocol.ErrorResponse{Value: -1})
		return nil
	}
	d.sent = append(d.sent, Sent{Command: cmd, At: d.now()})

	var replies []protocol.Response
	handled := false
	if d.handler != nil {
		replies, handled = d.handler(cmd)
	}
	if !handled {
		replies = d.apply(cmd)
	}

	for range d.unsolicited {
		if !d.ignoreStatus {
			d.queue(d.status(0, true))
		}
	}
	d.queue(replies...)

	return nil
}

// Available implements transport.Transport.
func (d *Device) Available() (bool, error) {
	if !d.opened {
		return false, transport.ErrClosed
	}

	f, ok := d.out.Dequeue()
	if !ok {
		return false, nil
	}
	if f.corrupt {
		return false, transport.ErrCorruptFrame
	}
	d.rxLen = copy(d.rx[:], f.data)

	return true, nil
}

// Flush implements transport.Transport.
func (d *Device) Flush() error {
	if !d.opened {
		return transport.ErrClosed
	}
	d.out.Reset()

	return nil
}

func (d *Device) queue(replies ...protocol.Response) {
	for _, r := range replies {
		if r == nil {
			continue
		}
		d.out.Enqueue(frame{data: protocol.EncodeResponse(r)})
	}
}

// apply runs cmd through the motor model and returns the firmware's replies.
func (d *Device) apply(cmd protocol.Command) []protocol.Response {
	ok := protocol.OKResponse{Value: int32(cmd.ID)}

	switch cmd.ID {
	case protocol.CmdPing:
		return []protocol.Response{protocol.PingResponse{Value: cmd.Param1}}

	case protocol.CmdMoveAbsolute, protocol.CmdMoveRelative:
		if !d.enabled {
			return []protocol.Response{protocol.ErrorResponse{Value: int32(cmd.ID)}}
		}
		d.setTarget(cmd)
		if d.motionStep == 0 && !d.stalled {
			d.x, d.y = d.targetX, d.targetY
		}
		if cmd.ID == protocol.CmdMoveRelative || d.ignoreStatus {
			return []protocol.Response{ok}
		}

		return []protocol.Response{d.status(uint8(cmd.ID), false)}

	case protocol.CmdSetSpeed:
		d.setPair(&d.speed, cmd)
	case protocol.CmdSetAccel:
		d.setPair(&d.accel, cmd)
	case protocol.CmdHome:
		d.x, d.y = 0, 0
		d.targetX, d.targetY = 0, 0
	case protocol.CmdStop:
		d.targetX, d.targetY = d.x, d.y
	case protocol.CmdSetMode:
		d.mode = protocol.Mode(cmd.Param1) //nolint:gosec // mode values are 0 or 1
	case protocol.CmdEnable:
		d.enabled = true
	case protocol.CmdDisable:
		d.enabled = false

	case protocol.CmdStatus:
		if d.ignoreStatus {
			return nil
		}
		d.step()

		return []protocol.Response{d.status(uint8(cmd.ID), false)}
	}

	return []protocol.Response{ok}
}

func (d *Device) setTarget(cmd protocol.Command) {
	relative := cmd.ID == protocol.CmdMoveRelative
	if cmd.Axes.Has(protocol.AxisX) {
		if relative {
			d.targetX = d.x + cmd.Param1
		} else {
			d.targetX = cmd.Param1
		}
	}
	if cmd.Axes.Has(protocol.AxisY) {
		if relative {
			d.targetY = d.y + cmd.Param2
		} else {
			d.targetY = cmd.Param2
		}
	}
}

func (d *Device) setPair(pair *[2]int32, cmd protocol.Command) {
	if cmd.Axes.Has(protocol.AxisX) {
		pair[0] = cmd.Param1
	}
	if cmd.Axes.Has(protocol.AxisY) {
		pair[1] = cmd.Param2
	}
}

// step advances both motors toward their targets by the motion step.
func (d *Device) step() {
	if d.stalled || d.motionStep == 0 {
		return
	}
	d.x = approach(d.x, d.targetX, d.motionStep)
	d.y = approach(d.y, d.targetY, d.motionStep)
}

func approach(pos, target, step int32) int32 {
	switch {
	case target > pos+step:
		return pos + step
	case target < pos-step:
		return pos - step
	default:
		return target
	}
}

func (d *Device) status(echo uint8, position bool) protocol.StatusResponse {
	xRunning := !d.stalled && d.x != d.targetX
	yRunning := !d.stalled && d.y != d.targetY
	d.seq++

	st := protocol.StatusResponse{
		Position:    position,
		CommandEcho: echo,
		X:           d.x,
		Y:           d.y,
		XRunning:    xRunning,
		YRunning:    yRunning,
		Mode:        d.mode,
		Sequence:    d.seq,
	}
	if xRunning {
		st.XSpeed = int16(d.speed[0]) //nolint:gosec // speeds fit the wire field
	}
	if yRunning {
		st.YSpeed = int16(d.speed[1]) //nolint:gosec // speeds fit the wire field
	}

	return st
}
