package protocol

import (
	"encoding/binary"
	"fmt"
)

// CommandFrameSize is the size of an encoded command frame.
const CommandFrameSize = 10

// CommandID identifies a device command.
type CommandID uint8

// Command ids understood by the firmware.
const (
	CmdMoveRelative CommandID = 1
	CmdMoveAbsolute CommandID = 2
	CmdSetSpeed     CommandID = 3
	CmdSetAccel     CommandID = 4
	CmdHome         CommandID = 5
	CmdStop         CommandID = 6
	CmdSetMode      CommandID = 7
	CmdStatus       CommandID = 8
	CmdDisable      CommandID = 9
	CmdEnable       CommandID = 10
	CmdPing         CommandID = 11
)

// String returns the command name.
func (id CommandID) String() string {
	switch id {
	case CmdMoveRelative:
		return "MoveRelative"
	case CmdMoveAbsolute:
		return "MoveAbsolute"
	case CmdSetSpeed:
		return "SetSpeed"
	case CmdSetAccel:
		return "SetAccel"
	case CmdHome:
		return "Home"
	case CmdStop:
		return "Stop"
	case CmdSetMode:
		return "SetMode"
	case CmdStatus:
		return "Status"
	case CmdDisable:
		return "Disable"
	case CmdEnable:
		return "Enable"
	case CmdPing:
		return "Ping"
	default:
		return fmt.Sprintf("Command(%d)", uint8(id))
	}
}

// IsValid reports whether id is a known command.
func (id CommandID) IsValid() bool {
	return id >= CmdMoveRelative && id <= CmdPing
}

// IsMovement reports whether the command starts motor motion.
//
// The device does not acknowledge completion of movement commands; it streams
// status frames while moving instead.
func (id CommandID) IsMovement() bool {
	return id == CmdMoveRelative || id == CmdMoveAbsolute
}

// AxisMask selects the motors addressed by a command.
type AxisMask uint8

const (
	AxisNone AxisMask = 0
	AxisX    AxisMask = 1 << 0
	AxisY    AxisMask = 1 << 1
	AxisBoth          = AxisX | AxisY
)

// Has reports whether all axes in other are selected.
func (m AxisMask) Has(other AxisMask) bool {
	return m&other == other
}

func (m AxisMask) String() string {
	switch m & AxisBoth {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisBoth:
		return "XY"
	default:
		return "-"
	}
}

// Mode is the device operation mode.
type Mode uint8

const (
	// ModeJoystick hands control of the motors to the manual joystick.
	ModeJoystick Mode = 0
	// ModeSerial accepts motion commands from the serial link.
	ModeSerial Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeJoystick:
		return "joystick"
	case ModeSerial:
		return "serial"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Command is an immutable outbound device command.
type Command struct {
	ID     CommandID
	Axes   AxisMask
	Param1 int32
	Param2 int32
}

// NewCommand builds a command from raw fields.
func NewCommand(id CommandID, axes AxisMask, param1, param2 int32) Command {
	return Command{ID: id, Axes: axes, Param1: param1, Param2: param2}
}

// AxisCommand builds a two-axis command. Unset axes are left out of the axis
// mask and encoded with a zero placeholder parameter.
func AxisCommand(id CommandID, x, y Axis) Command {
	cmd := Command{ID: id}
	if x.Set {
		cmd.Axes |= AxisX
		cmd.Param1 = x.Value
	}
	if y.Set {
		cmd.Axes |= AxisY
		cmd.Param2 = y.Value
	}

	return cmd
}

// PingCommand builds a ping carrying a value the device must echo.
func PingCommand(value int32) Command {
	return Command{ID: CmdPing, Param1: value}
}

// ModeCommand builds a set-mode command.
func ModeCommand(mode Mode) Command {
	return Command{ID: CmdSetMode, Param1: int32(mode)}
}

// X returns the X parameter as an optional axis value.
func (c Command) X() Axis {
	if !c.Axes.Has(AxisX) {
		return Axis{}
	}
	return At(c.Param1)
}

// Y returns the Y parameter as an optional axis value.
func (c Command) Y() Axis {
	if !c.Axes.Has(AxisY) {
		return Axis{}
	}
	return At(c.Param2)
}

func (c Command) String() string {
	return fmt.Sprintf("%s[%s](%d,%d)", c.ID, c.Axes, c.Param1, c.Param2)
}

// Encode serializes the command to a new 10-byte frame.
func (c Command) Encode() []byte {
	buf := make([]byte, CommandFrameSize)
	c.put(buf)

	return buf
}

// EncodeTo serializes the command into buf and returns the number of bytes
// written.
func (c Command) EncodeTo(buf []byte) (int, error) {
	if len(buf) < CommandFrameSize {
		return 0, fmt.Errorf("protocol: buffer too small for command: got %d bytes, want %d", len(buf), CommandFrameSize)
	}
	c.put(buf)

	return CommandFrameSize, nil
}

func (c Command) put(buf []byte) {
	buf[0] = byte(c.ID)
	buf[1] = byte(c.Axes)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(c.Param1))  //nolint:gosec // two's complement wire format
	binary.LittleEndian.PutUint32(buf[6:10], uint32(c.Param2)) //nolint:gosec // two's complement wire format
}

// DecodeCommand parses a 10-byte command frame. Trailing bytes are ignored.
func DecodeCommand(data []byte) (Command, error) {
	if len(data) < CommandFrameSize {
		return Command{}, fmt.Errorf("%w: command frame has %d bytes, want %d", ErrMalformedCommand, len(data), CommandFrameSize)
	}

	cmd := Command{
		ID:     CommandID(data[0]),
		Axes:   AxisMask(data[1]),
		Param1: int32(binary.LittleEndian.Uint32(data[2:6])),  //nolint:gosec // two's complement wire format
		Param2: int32(binary.LittleEndian.Uint32(data[6:10])), //nolint:gosec // two's complement wire format
	}
	if !cmd.ID.IsValid() {
		return Command{}, fmt.Errorf("%w: unknown command id %d", ErrMalformedCommand, data[0])
	}

	return cmd, nil
}
