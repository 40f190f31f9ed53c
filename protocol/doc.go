// Package protocol implements the binary command/response framing spoken by the
// two-axis stepper stage firmware.
//
// The package is pure: it converts between typed values and byte slices and
// performs no I/O. Framing below this layer (start/stop bytes, stuffing,
// checksums) belongs to the transport.
//
// # Outbound frames
//
// Every command is a fixed 10-byte little-endian frame:
//
//	[CommandID u8][AxisMask u8][Param1 i32][Param2 i32]
//
// AxisMask bit 0 selects the X motor and bit 1 the Y motor.
//
// # Inbound frames
//
// The first byte of a response selects its kind:
//
//	OK / Error / Ping   5 bytes   [kind][value i32]
//	Status / Position  23 bytes   [kind][echo u8][x i32][y i32][xSpeed i16][ySpeed i16]
//	                              [xRunning u8][yRunning u8][mode u8][sequence u16][param1 i32]
//
// An OK frame echoes the id of the command it acknowledges in its value.
// Status frames echo the id of the command that triggered them, but the device
// also streams unsolicited status frames while motors are running.
package protocol
