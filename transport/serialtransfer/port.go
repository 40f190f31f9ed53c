// Package serialtransfer implements transport.Transport over a serial port
// using the packet format of the SerialTransfer microcontroller library.
//
// A packet on the wire is
//
//	0x7E | id | overhead | len | payload (1..254 bytes) | crc8 | 0x81
//
// Payload bytes equal to the start byte are replaced by a forward-linked chain
// of offsets whose head is the overhead byte. The CRC-8 (polynomial 0x9B)
// covers the stuffed payload.
package serialtransfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-xystage/internal/pool"
	"github.com/arloliu/go-xystage/logger"
	"github.com/arloliu/go-xystage/transport"
)

const (
	DefaultBaudRate    = 115200
	DefaultPollTimeout = 5 * time.Millisecond
)

// serialPort is the subset of serial.Port used by Port.
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Close() error
}

type openFunc func(name string, mode *serial.Mode) (serialPort, error)

func openSerial(name string, mode *serial.Mode) (serialPort, error) {
	return serial.Open(name, mode)
}

// Port is a SerialTransfer packet channel over a serial device.
// It is not safe for concurrent use.
type Port struct {
	name        string
	baudRate    int
	pollTimeout time.Duration
	settleDelay time.Duration
	packetID    byte
	logger      logger.Logger

	open openFunc
	port serialPort

	tx      [MaxPayloadSize]byte
	rx      [MaxPayloadSize]byte
	rxLen   int
	wire    []byte
	readBuf [64]byte
	pending []byte
	parser  parser
}

var _ transport.Transport = (*Port)(nil)

// Option configures a Port.
type Option interface {
	apply(*Port) error
}

type optFunc func(*Port) error

func (f optFunc) apply(p *Port) error { return f(p) }

// WithBaudRate sets the line speed. The default is 115200.
func WithBaudRate(baud int) Option {
	return optFunc(func(p *Port) error {
		if baud <= 0 {
			return fmt.Errorf("serialtransfer: invalid baud rate %d", baud)
		}
		p.baudRate = baud

		return nil
	})
}

// WithPollTimeout sets how long Available waits for inbound bytes.
func WithPollTimeout(d time.Duration) Option {
	return optFunc(func(p *Port) error {
		if d <= 0 {
			return errors.New("serialtransfer: poll timeout must be positive")
		}
		p.pollTimeout = d

		return nil
	})
}

// WithSettleDelay sets an extra wait after the port is opened.
func WithSettleDelay(d time.Duration) Option {
	return optFunc(func(p *Port) error {
		if d < 0 {
			return errors.New("serialtransfer: settle delay must not be negative")
		}
		p.settleDelay = d

		return nil
	})
}

// WithPacketID sets the id byte written into outbound packets.
func WithPacketID(id byte) Option {
	return optFunc(func(p *Port) error {
		p.packetID = id
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(p *Port) error {
		if l == nil {
			return errors.New("serialtransfer: logger must not be nil")
		}
		p.logger = l

		return nil
	})
}

// New creates an unopened Port for the named serial device.
func New(name string, opts ...Option) (*Port, error) {
	if name == "" {
		return nil, errors.New("serialtransfer: empty port name")
	}

	p := &Port{
		name:        name,
		baudRate:    DefaultBaudRate,
		pollTimeout: DefaultPollTimeout,
		logger:      logger.GetLogger(),
		open:        openSerial,
		wire:        make([]byte, 0, headerSize+MaxPayloadSize+trailerSize),
	}

	for _, opt := range opts {
		if err := opt.apply(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Open creates a Port and opens it.
func Open(name string, opts ...Option) (*Port, error) {
	p, err := New(name, opts...)
	if err != nil {
		return nil, err
	}
	if err := p.Open(); err != nil {
		return nil, err
	}

	return p, nil
}

// Name returns the serial device name.
func (p *Port) Name() string { return p.name }

// Open opens the serial device. Opening an open port is a no-op.
func (p *Port) Open() error {
	if p.port != nil {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: p.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := p.open(p.name, mode)
	if err != nil {
		return fmt.Errorf("serialtransfer: open %s: %w", p.name, err)
	}

	if err := port.SetReadTimeout(p.pollTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("serialtransfer: set read timeout on %s: %w", p.name, err)
	}

	p.port = port
	p.resetReceiver()
	p.logger.Debug("serial port opened", "port", p.name, "baud", p.baudRate)

	if p.settleDelay > 0 {
		_ = pool.Sleep(context.Background(), p.settleDelay)
	}

	return nil
}

// Close closes the serial device. Closing a closed port is a no-op.
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}

	err := p.port.Close()
	p.port = nil
	p.resetReceiver()
	p.logger.Debug("serial port closed", "port", p.name)

	if err != nil {
		return fmt.Errorf("serialtransfer: close %s: %w", p.name, err)
	}

	return nil
}

// TxBuffer returns the outbound payload buffer.
func (p *Port) TxBuffer() []byte { return p.tx[:] }

// RxBuffer returns the payload of the last received packet.
func (p *Port) RxBuffer() []byte { return p.rx[:p.rxLen] }

// Send frames the first n bytes of TxBuffer and writes the packet.
func (p *Port) Send(n int) error {
	if p.port == nil {
		return transport.ErrClosed
	}
	if n <= 0 || n > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", transport.ErrPayloadTooLarge, n)
	}

	p.wire = appendPacket(p.wire[:0], p.packetID, p.tx[:n])

	for written := 0; written < len(p.wire); {
		m, err := p.port.Write(p.wire[written:])
		if err != nil {
			return fmt.Errorf("serialtransfer: write %s: %w", p.name, err)
		}
		if m == 0 {
			return fmt.Errorf("serialtransfer: write %s: wrote %d of %d bytes", p.name, written, len(p.wire))
		}
		written += m
	}

	return nil
}

// Available reads whatever bytes arrive within the poll timeout and reports
// whether a complete packet is now in RxBuffer. A packet that fails
// validation is dropped and reported as transport.ErrCorruptFrame.
func (p *Port) Available() (bool, error) {
	if p.port == nil {
		return false, transport.ErrClosed
	}

	if ok, err := p.parsePending(); ok || err != nil {
		return ok, err
	}

	n, err := p.port.Read(p.readBuf[:])
	if err != nil {
		return false, fmt.Errorf("serialtransfer: read %s: %w", p.name, err)
	}
	if n == 0 {
		return false, nil
	}
	p.pending = append(p.pending, p.readBuf[:n]...)

	return p.parsePending()
}

func (p *Port) parsePending() (bool, error) {
	for len(p.pending) > 0 {
		b := p.pending[0]
		p.pending = p.pending[1:]

		payload, err := p.parser.feed(b)
		if err != nil {
			p.logger.Warn("dropped corrupt packet", "port", p.name, "error", err)
			return false, err
		}
		if payload != nil {
			p.rxLen = copy(p.rx[:], payload)
			return true, nil
		}
	}
	p.pending = p.pending[:0]

	return false, nil
}

// Flush discards buffered bytes in both directions and any partial packet.
func (p *Port) Flush() error {
	if p.port == nil {
		return transport.ErrClosed
	}

	p.resetReceiver()

	return errors.Join(p.port.ResetInputBuffer(), p.port.ResetOutputBuffer())
}

func (p *Port) resetReceiver() {
	p.parser.reset()
	p.pending = p.pending[:0]
	p.rxLen = 0
}
