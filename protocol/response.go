package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame sizes of inbound responses.
const (
	ShortFrameSize  = 5
	StatusFrameSize = 23
)

var (
	// ErrMalformedResponse is returned when an inbound frame is truncated or
	// carries an unknown kind.
	ErrMalformedResponse = errors.New("protocol: malformed response")
	// ErrMalformedCommand is returned when an outbound frame cannot be decoded.
	ErrMalformedCommand = errors.New("protocol: malformed command")
)

// ResponseKind is the first byte of an inbound frame.
type ResponseKind uint8

const (
	KindOK       ResponseKind = 1
	KindError    ResponseKind = 2
	KindStatus   ResponseKind = 3
	KindPosition ResponseKind = 4
	KindPing     ResponseKind = 5
)

func (k ResponseKind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindError:
		return "Error"
	case KindStatus:
		return "Status"
	case KindPosition:
		return "Position"
	case KindPing:
		return "Ping"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Response is a decoded inbound frame. It is implemented by OKResponse,
// ErrorResponse, PingResponse and StatusResponse only.
type Response interface {
	Kind() ResponseKind
	String() string

	response()
}

// OKResponse acknowledges a command. Value holds the echoed command id.
type OKResponse struct {
	Value int32
}

// ErrorResponse reports a device-side error. The wait for a correlated
// response continues after one is received.
type ErrorResponse struct {
	Value int32
}

// PingResponse echoes the value carried by a ping command.
type PingResponse struct {
	Value int32
}

// StatusResponse carries a snapshot of the device state. It is sent both in
// reply to commands and unsolicited while motors are running.
type StatusResponse struct {
	// Position is true for frames of KindPosition.
	Position    bool
	CommandEcho uint8
	X           int32
	Y           int32
	XSpeed      int16
	YSpeed      int16
	XRunning    bool
	YRunning    bool
	Mode        Mode
	Sequence    uint16
	Param1      int32
}

func (OKResponse) Kind() ResponseKind    { return KindOK }
func (ErrorResponse) Kind() ResponseKind { return KindError }
func (PingResponse) Kind() ResponseKind  { return KindPing }

func (r StatusResponse) Kind() ResponseKind {
	if r.Position {
		return KindPosition
	}
	return KindStatus
}

func (OKResponse) response()     {}
func (ErrorResponse) response()  {}
func (PingResponse) response()   {}
func (StatusResponse) response() {}

// Acknowledges reports whether the frame acknowledges the given command.
func (r OKResponse) Acknowledges(id CommandID) bool {
	return r.Value == int32(id)
}

// Echoes reports whether the frame was triggered by the given command.
func (r StatusResponse) Echoes(id CommandID) bool {
	return r.CommandEcho == uint8(id)
}

// Running reports whether any motor is running.
func (r StatusResponse) Running() bool {
	return r.XRunning || r.YRunning
}

func (r OKResponse) String() string    { return fmt.Sprintf("OK(%d)", r.Value) }
func (r ErrorResponse) String() string { return fmt.Sprintf("Error(%d)", r.Value) }
func (r PingResponse) String() string  { return fmt.Sprintf("Ping(%d)", r.Value) }

func (r StatusResponse) String() string {
	return fmt.Sprintf("%s(echo=%d pos=(%d,%d) speed=(%d,%d) running=(%t,%t) mode=%s seq=%d)",
		r.Kind(), r.CommandEcho, r.X, r.Y, r.XSpeed, r.YSpeed, r.XRunning, r.YRunning, r.Mode, r.Sequence)
}

// DecodeResponse parses an inbound frame. Bytes following the frame are
// ignored, since transport buffers are fixed size.
func DecodeResponse(data []byte) (Response, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedResponse)
	}

	kind := ResponseKind(data[0])
	switch kind {
	case KindOK, KindError, KindPing:
		if len(data) < ShortFrameSize {
			return nil, fmt.Errorf("%w: %s frame has %d bytes, want %d", ErrMalformedResponse, kind, len(data), ShortFrameSize)
		}
		value := int32(binary.LittleEndian.Uint32(data[1:5])) //nolint:gosec // two's complement wire format

		switch kind {
		case KindOK:
			return OKResponse{Value: value}, nil
		case KindError:
			return ErrorResponse{Value: value}, nil
		default:
			return PingResponse{Value: value}, nil
		}

	case KindStatus, KindPosition:
		if len(data) < StatusFrameSize {
			return nil, fmt.Errorf("%w: %s frame has %d bytes, want %d", ErrMalformedResponse, kind, len(data), StatusFrameSize)
		}

		return StatusResponse{
			Position:    kind == KindPosition,
			CommandEcho: data[1],
			X:           int32(binary.LittleEndian.Uint32(data[2:6])),   //nolint:gosec // two's complement wire format
			Y:           int32(binary.LittleEndian.Uint32(data[6:10])),  //nolint:gosec // two's complement wire format
			XSpeed:      int16(binary.LittleEndian.Uint16(data[10:12])), //nolint:gosec // two's complement wire format
			YSpeed:      int16(binary.LittleEndian.Uint16(data[12:14])), //nolint:gosec // two's complement wire format
			XRunning:    data[14] != 0,
			YRunning:    data[15] != 0,
			Mode:        Mode(data[16]),
			Sequence:    binary.LittleEndian.Uint16(data[17:19]),
			Param1:      int32(binary.LittleEndian.Uint32(data[19:23])), //nolint:gosec // two's complement wire format
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrMalformedResponse, data[0])
	}
}

// EncodeResponse serializes a response to its wire frame. It is the inverse
// of DecodeResponse and is used by device simulators.
func EncodeResponse(r Response) []byte {
	switch v := r.(type) {
	case OKResponse:
		return encodeShort(KindOK, v.Value)
	case ErrorResponse:
		return encodeShort(KindError, v.Value)
	case PingResponse:
		return encodeShort(KindPing, v.Value)
	case StatusResponse:
		buf := make([]byte, StatusFrameSize)
		buf[0] = byte(v.Kind())
		buf[1] = v.CommandEcho
		binary.LittleEndian.PutUint32(buf[2:6], uint32(v.X))       //nolint:gosec // two's complement wire format
		binary.LittleEndian.PutUint32(buf[6:10], uint32(v.Y))      //nolint:gosec // two's complement wire format
		binary.LittleEndian.PutUint16(buf[10:12], uint16(v.XSpeed)) //nolint:gosec // two's complement wire format
		binary.LittleEndian.PutUint16(buf[12:14], uint16(v.YSpeed)) //nolint:gosec // two's complement wire format
		buf[14] = boolByte(v.XRunning)
		buf[15] = boolByte(v.YRunning)
		buf[16] = byte(v.Mode)
		binary.LittleEndian.PutUint16(buf[17:19], v.Sequence)
		binary.LittleEndian.PutUint32(buf[19:23], uint32(v.Param1)) //nolint:gosec // two's complement wire format

		return buf
	default:
		return nil
	}
}

func encodeShort(kind ResponseKind, value int32) []byte {
	buf := make([]byte, ShortFrameSize)
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(value)) //nolint:gosec // two's complement wire format

	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
