package simulator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-xystage/protocol"
	"github.com/arloliu/go-xystage/transport"
)

// exchange sends cmd and returns every queued reply.
func exchange(t *testing.T, d *Device, cmd protocol.Command) []protocol.Response {
	t.Helper()

	n, err := cmd.EncodeTo(d.TxBuffer())
	require.NoError(t, err)
	require.NoError(t, d.Send(n))

	var out []protocol.Response
	for {
		ok, err := d.Available()
		require.NoError(t, err)
		if !ok {
			return out
		}
		r, err := protocol.DecodeResponse(d.RxBuffer())
		require.NoError(t, err)
		out = append(out, r)
	}
}

func openDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()

	d := New(opts...)
	require.NoError(t, d.Open())

	return d
}

func TestDevice_Closed(t *testing.T) {
	d := New()
	assert.ErrorIs(t, d.Send(protocol.CommandFrameSize), transport.ErrClosed)
	_, err := d.Available()
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.ErrorIs(t, d.Flush(), transport.ErrClosed)

	openErr := errors.New("port busy")
	d.SetOpenError(openErr)
	assert.ErrorIs(t, d.Open(), openErr)
	assert.False(t, d.IsOpen())
}

func TestDevice_PingEcho(t *testing.T) {
	d := openDevice(t)

	replies := exchange(t, d, protocol.PingCommand(4321))
	assert.Equal(t, []protocol.Response{protocol.PingResponse{Value: 4321}}, replies)
}

func TestDevice_MoveRequiresEnable(t *testing.T) {
	d := openDevice(t)

	replies := exchange(t, d, protocol.AxisCommand(protocol.CmdMoveAbsolute, protocol.At(10), protocol.At(10)))
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.KindError, replies[0].Kind())

	replies = exchange(t, d, protocol.NewCommand(protocol.CmdEnable, protocol.AxisBoth, 0, 0))
	assert.Equal(t, []protocol.Response{protocol.OKResponse{Value: int32(protocol.CmdEnable)}}, replies)
	assert.True(t, d.Enabled())

	replies = exchange(t, d, protocol.AxisCommand(protocol.CmdMoveAbsolute, protocol.At(10), protocol.Axis{}))
	require.Len(t, replies, 1)
	st, ok := replies[0].(protocol.StatusResponse)
	require.True(t, ok)
	assert.True(t, st.Echoes(protocol.CmdMoveAbsolute))
	assert.Equal(t, int32(10), st.X)
	assert.Equal(t, int32(0), st.Y)

	replies = exchange(t, d, protocol.AxisCommand(protocol.CmdMoveRelative, protocol.At(-3), protocol.At(5)))
	assert.Equal(t, []protocol.Response{protocol.OKResponse{Value: int32(protocol.CmdMoveRelative)}}, replies)
	x, y := d.Position()
	assert.Equal(t, int32(7), x)
	assert.Equal(t, int32(5), y)
}

func TestDevice_MotionStep(t *testing.T) {
	d := openDevice(t, WithMotionStep(30))
	exchange(t, d, protocol.NewCommand(protocol.CmdEnable, protocol.AxisBoth, 0, 0))
	exchange(t, d, protocol.AxisCommand(protocol.CmdMoveAbsolute, protocol.At(100), protocol.At(-40)))

	var xs []int32
	for range 5 {
		replies := exchange(t, d, protocol.NewCommand(protocol.CmdStatus, protocol.AxisNone, 0, 0))
		require.Len(t, replies, 1)
		st := replies[0].(protocol.StatusResponse)
		xs = append(xs, st.X)
		if st.X == 100 {
			assert.False(t, st.Running())
		}
	}
	assert.Equal(t, []int32{30, 60, 90, 100, 100}, xs)
	_, y := d.Position()
	assert.Equal(t, int32(-40), y)
}

func TestDevice_SettingsHomeStop(t *testing.T) {
	d := openDevice(t, WithPosition(50, 60))

	exchange(t, d, protocol.AxisCommand(protocol.CmdSetSpeed, protocol.At(300), protocol.Axis{}))
	exchange(t, d, protocol.AxisCommand(protocol.CmdSetAccel, protocol.At(400), protocol.At(500)))
	exchange(t, d, protocol.ModeCommand(protocol.ModeSerial))

	sx, sy := d.Speed()
	assert.Equal(t, []int32{300, 1000}, []int32{sx, sy})
	ax, ay := d.Accel()
	assert.Equal(t, []int32{400, 500}, []int32{ax, ay})
	assert.Equal(t, protocol.ModeSerial, d.Mode())

	exchange(t, d, protocol.NewCommand(protocol.CmdHome, protocol.AxisBoth, 0, 0))
	x, y := d.Position()
	assert.Zero(t, x)
	assert.Zero(t, y)

	assert.Len(t, d.Commands(protocol.CmdSetSpeed, protocol.CmdSetAccel), 2)
	assert.Len(t, d.Commands(), 4)
}

func TestDevice_Misbehavior(t *testing.T) {
	t.Run("ignore status", func(t *testing.T) {
		d := openDevice(t, WithIgnoreStatus(), WithUnsolicitedStatus(2))
		exchange(t, d, protocol.NewCommand(protocol.CmdEnable, protocol.AxisBoth, 0, 0))

		assert.Empty(t, exchange(t, d, protocol.NewCommand(protocol.CmdStatus, protocol.AxisNone, 0, 0)))

		replies := exchange(t, d, protocol.AxisCommand(protocol.CmdMoveAbsolute, protocol.At(5), protocol.At(5)))
		assert.Equal(t, []protocol.Response{protocol.OKResponse{Value: int32(protocol.CmdMoveAbsolute)}}, replies)
	})

	t.Run("unsolicited status", func(t *testing.T) {
		d := openDevice(t, WithUnsolicitedStatus(2))
		replies := exchange(t, d, protocol.NewCommand(protocol.CmdStop, protocol.AxisBoth, 0, 0))
		require.Len(t, replies, 3)
		assert.Equal(t, protocol.KindPosition, replies[0].Kind())
		assert.Equal(t, protocol.KindPosition, replies[1].Kind())
		assert.Equal(t, protocol.OKResponse{Value: int32(protocol.CmdStop)}, replies[2])
	})

	t.Run("stalled", func(t *testing.T) {
		d := openDevice(t)
		d.SetStalled(true)
		exchange(t, d, protocol.NewCommand(protocol.CmdEnable, protocol.AxisBoth, 0, 0))
		exchange(t, d, protocol.AxisCommand(protocol.CmdMoveAbsolute, protocol.At(80), protocol.At(80)))

		replies := exchange(t, d, protocol.NewCommand(protocol.CmdStatus, protocol.AxisNone, 0, 0))
		st := replies[0].(protocol.StatusResponse)
		assert.Zero(t, st.X)
		assert.False(t, st.Running())
	})

	t.Run("handler", func(t *testing.T) {
		d := openDevice(t)
		d.SetHandler(func(cmd protocol.Command) ([]protocol.Response, bool) {
			if cmd.ID == protocol.CmdHome {
				return []protocol.Response{protocol.ErrorResponse{Value: 99}}, true
			}
			return nil, false
		})

		replies := exchange(t, d, protocol.NewCommand(protocol.CmdHome, protocol.AxisBoth, 0, 0))
		assert.Equal(t, []protocol.Response{protocol.ErrorResponse{Value: 99}}, replies)
		replies = exchange(t, d, protocol.NewCommand(protocol.CmdEnable, protocol.AxisBoth, 0, 0))
		assert.Equal(t, []protocol.Response{protocol.OKResponse{Value: int32(protocol.CmdEnable)}}, replies)
	})

	t.Run("failed sends and corrupt frames", func(t *testing.T) {
		d := openDevice(t)
		sendErr := errors.New("write: broken pipe")
		d.FailSends(1, sendErr)
		assert.ErrorIs(t, d.Send(protocol.CommandFrameSize), sendErr)
		assert.Empty(t, d.Sent())

		d.InjectCorrupt()
		d.InjectRaw([]byte{0x09})
		_, err := d.Available()
		assert.ErrorIs(t, err, transport.ErrCorruptFrame)
		ok, err := d.Available()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte{0x09}, d.RxBuffer())

		d.PushStatus()
		assert.Equal(t, 1, d.Pending())
		require.NoError(t, d.Flush())
		assert.Zero(t, d.Pending())
	})
}
