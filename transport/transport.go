// Package transport defines the framed duplex channel the stage controller
// talks through.
//
// A Transport delivers whole frames with integrity checking already applied.
// The controller writes a command into TxBuffer, calls Send with the frame
// length, then polls Available and reads RxBuffer when a frame has arrived.
// Implementations are not required to be safe for concurrent use.
package transport

import "errors"

var (
	// ErrClosed is returned when the transport is used before Open or after Close.
	ErrClosed = errors.New("transport: closed")
	// ErrCorruptFrame is returned by Available when an inbound frame failed
	// framing or checksum validation. The frame is dropped and the receiver
	// resynchronizes on the next start byte.
	ErrCorruptFrame = errors.New("transport: corrupt frame")
	// ErrPayloadTooLarge is returned by Send when n exceeds the buffer size.
	ErrPayloadTooLarge = errors.New("transport: payload too large")
)

// Transport is a framed duplex byte channel.
type Transport interface {
	// Open opens the underlying channel.
	Open() error
	// Close closes the underlying channel.
	Close() error
	// TxBuffer returns the fixed-size outbound buffer.
	TxBuffer() []byte
	// Send transmits the first n bytes of TxBuffer as one frame.
	Send(n int) error
	// Available reports whether a complete inbound frame is ready in RxBuffer.
	// It does not block longer than the implementation's poll timeout.
	Available() (bool, error)
	// RxBuffer returns the payload of the most recently received frame.
	RxBuffer() []byte
	// Flush discards pending inbound and outbound bytes.
	Flush() error
}
