package serialtransfer

import (
	"fmt"

	"github.com/arloliu/go-xystage/transport"
)

// Packet framing bytes and limits.
const (
	StartByte      byte = 0x7E
	StopByte       byte = 0x81
	MaxPayloadSize      = 254

	headerSize  = 4 // start, id, overhead, length
	trailerSize = 2 // crc, stop
	noOverhead  = 0xFF
)

// crcPolynomial is the CRC-8 generator used by the firmware library.
const crcPolynomial byte = 0x9B

var crcTable = makeCRCTable(crcPolynomial)

func makeCRCTable(poly byte) [256]byte {
	var table [256]byte
	for i := range table {
		curr := byte(i)
		for range 8 {
			if curr&0x80 != 0 {
				curr = (curr << 1) ^ poly
			} else {
				curr <<= 1
			}
		}
		table[i] = curr
	}

	return table
}

func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc = crcTable[crc^b]
	}

	return crc
}

// overheadIndex returns the index of the first start byte in payload, or
// noOverhead when there is none.
func overheadIndex(payload []byte) byte {
	for i, b := range payload {
		if b == StartByte {
			return byte(i)
		}
	}

	return noOverhead
}

// stuff replaces every start byte in payload with the distance to the next
// one. The last start byte becomes zero, terminating the chain.
func stuff(payload []byte) {
	next := -1
	for i := len(payload) - 1; i >= 0; i-- {
		if payload[i] != StartByte {
			continue
		}
		if next < 0 {
			payload[i] = 0
		} else {
			payload[i] = byte(next - i)
		}
		next = i
	}
}

// unstuff walks the chain starting at overhead and restores the start bytes.
func unstuff(payload []byte, overhead byte) {
	idx := int(overhead)
	for idx < len(payload) {
		delta := int(payload[idx])
		payload[idx] = StartByte
		if delta == 0 {
			return
		}
		idx += delta
	}
}

// appendPacket appends the framed packet for payload to dst. payload is not
// modified.
func appendPacket(dst []byte, id byte, payload []byte) []byte {
	dst = append(dst, StartByte, id, overheadIndex(payload), byte(len(payload)))
	start := len(dst)
	dst = append(dst, payload...)
	stuff(dst[start:])
	dst = append(dst, crc8(dst[start:]), StopByte)

	return dst
}

type parseState uint8

const (
	findStart parseState = iota
	findID
	findOverhead
	findLength
	findPayload
	findCRC
	findStop
)

// parser is a byte-at-a-time packet receiver. It keeps partial packets across
// reads and resynchronizes on the next start byte after an error.
type parser struct {
	state    parseState
	id       byte
	overhead byte
	length   int
	idx      int
	payload  [MaxPayloadSize]byte
}

func (ps *parser) reset() {
	ps.state = findStart
	ps.length = 0
	ps.idx = 0
}

// feed consumes one byte. It returns the unstuffed payload when b completes a
// packet. The returned slice is only valid until the next call.
func (ps *parser) feed(b byte) ([]byte, error) {
	switch ps.state {
	case findStart:
		if b == StartByte {
			ps.state = findID
		}

	case findID:
		ps.id = b
		ps.state = findOverhead

	case findOverhead:
		ps.overhead = b
		ps.state = findLength

	case findLength:
		if b == 0 || int(b) > MaxPayloadSize {
			ps.reset()
			return nil, fmt.Errorf("%w: payload length %d", transport.ErrCorruptFrame, b)
		}
		ps.length = int(b)
		ps.idx = 0
		ps.state = findPayload

	case findPayload:
		ps.payload[ps.idx] = b
		ps.idx++
		if ps.idx == ps.length {
			ps.state = findCRC
		}

	case findCRC:
		if want := crc8(ps.payload[:ps.length]); b != want {
			ps.reset()
			return nil, fmt.Errorf("%w: crc mismatch: got 0x%02X, want 0x%02X", transport.ErrCorruptFrame, b, want)
		}
		ps.state = findStop

	case findStop:
		length := ps.length
		ps.reset()
		if b != StopByte {
			return nil, fmt.Errorf("%w: stop byte 0x%02X", transport.ErrCorruptFrame, b)
		}
		payload := ps.payload[:length]
		unstuff(payload, ps.overhead)

		return payload, nil
	}

	return nil, nil
}
