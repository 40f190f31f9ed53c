package simulator

import (
	"github.com/arloliu/go-xystage/protocol"
)

// IsOpen reports whether the device has been opened.
func (d *Device) IsOpen() bool { return d.opened }

// Sent returns a copy of every command received so far.
func (d *Device) Sent() []Sent {
	out := make([]Sent, len(d.sent))
	copy(out, d.sent)

	return out
}

// Commands returns the received commands with the given ids, in order. With
// no ids it returns every command.
func (d *Device) Commands(ids ...protocol.CommandID) []protocol.Command {
	var out []protocol.Command
	for _, s := range d.sent {
		if len(ids) == 0 || containsID(ids, s.Command.ID) {
			out = append(out, s.Command)
		}
	}

	return out
}

// ResetSent forgets recorded commands.
func (d *Device) ResetSent() { d.sent = d.sent[:0] }

func containsID(ids []protocol.CommandID, id protocol.CommandID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}

	return false
}

// Position returns the motor position.
func (d *Device) Position() (x, y int32) { return d.x, d.y }

// Target returns the position the motors are moving to.
func (d *Device) Target() (x, y int32) { return d.targetX, d.targetY }

// SetPosition moves the motors instantly and clears their target.
func (d *Device) SetPosition(x, y int32) {
	d.x, d.y = x, y
	d.targetX, d.targetY = x, y
}

// Speed returns the configured motor speeds.
func (d *Device) Speed() (x, y int32) { return d.speed[0], d.speed[1] }

// Accel returns the configured motor accelerations.
func (d *Device) Accel() (x, y int32) { return d.accel[0], d.accel[1] }

// Enabled reports whether the motors are enabled.
func (d *Device) Enabled() bool { return d.enabled }

// Mode returns the operation mode.
func (d *Device) Mode() protocol.Mode { return d.mode }

// SetStalled makes moves leave the motors where they are with both axes
// reported as stopped.
func (d *Device) SetStalled(stalled bool) { d.stalled = stalled }

// SetIgnoreStatus toggles answering status queries.
func (d *Device) SetIgnoreStatus(ignore bool) { d.ignoreStatus = ignore }

// SetHandler replaces the command interceptor. A nil handler removes it.
func (d *Device) SetHandler(h Handler) { d.handler = h }

// SetOpenError makes Open fail with err. A nil err restores normal behavior.
func (d *Device) SetOpenError(err error) { d.openErr = err }

// FailSends makes the next n calls to Send return err.
func (d *Device) FailSends(n int, err error) {
	d.failSends = n
	d.sendErr = err
}

// Inject queues a response frame as if the firmware had sent it.
func (d *Device) Inject(replies ...protocol.Response) { d.queue(replies...) }

// InjectRaw queues an arbitrary frame payload.
func (d *Device) InjectRaw(data []byte) {
	d.out.Enqueue(frame{data: append([]byte(nil), data...)})
}

// InjectCorrupt queues a frame that fails transport validation.
func (d *Device) InjectCorrupt() { d.out.Enqueue(frame{corrupt: true}) }

// PushStatus queues an unsolicited status frame with the current state.
func (d *Device) PushStatus() {
	if d.ignoreStatus {
		return
	}
	d.queue(d.status(0, true))
}

// Pending returns the number of queued inbound frames.
func (d *Device) Pending() int { return d.out.Length() }

// Reply runs cmd through the motor model and returns its replies without
// queuing them. Handlers use it to fall back to the default behavior after
// altering the replies.
func (d *Device) Reply(cmd protocol.Command) []protocol.Response { return d.apply(cmd) }
