package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Header describes the packet following it.
type Header struct {
	Type       TypeCode
	Dir        Direction
	PayloadLen uint16
}

// Bytes returns the encoded header.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	h.put(b)
	return b
}

func (h Header) put(b []byte) {
	b[0], b[1] = byte(h.Type), byte(h.Dir)
	binary.LittleEndian.PutUint16(b[2:], h.PayloadLen)
}

// ParseHeader decodes a header and validates its fields.
func ParseHeader(b []byte) (h Header, err error) {
	if len(b) < HeaderSize {
		return h, ErrShortFrame
	}
	h.Type, h.Dir = TypeCode(b[0]), Direction(b[1])
	h.PayloadLen = binary.LittleEndian.Uint16(b[2:])
	if !h.Dir.IsValid() {
		return h, ErrBadDirection
	}
	if h.PayloadLen > MaxPayloadSize {
		return h, ErrPayloadTooLarge
	}
	return h, nil
}

func (h Header) String() string {
	return fmt.Sprintf("%s %s len=%d", h.Dir, h.Type, h.PayloadLen)
}

// Packet is the header and payload pair carried by a frame.
type Packet struct {
	Header  Header
	Payload []byte
}

// NewPacket creates a packet and fills in the payload length.
func NewPacket(typ TypeCode, dir Direction, payload []byte) (*Packet, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	return &Packet{
		Header:  Header{Type: typ, Dir: dir, PayloadLen: uint16(len(payload))},
		Payload: payload,
	}, nil
}

// Validate checks the payload length against the header.
func (p *Packet) Validate() error {
	if p.Header.PayloadLen > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	if int(p.Header.PayloadLen) != len(p.Payload) {
		return ErrLengthMismatch
	}
	return nil
}

// Checksum calculates the CRC-32 of header and payload.
func (p *Packet) Checksum() uint32 {
	return Checksum(p.Header, p.Payload)
}

// Bytes returns the encoded frame.
func (p *Packet) Bytes() ([]byte, error) {
	return Serialize(p.Header, p.Payload)
}

// WriteTo writes the encoded frame.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	frame, err := p.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(frame)
	return int64(n), err
}

func (p *Packet) String() string {
	return fmt.Sprintf("[%s] %s", p.Header, HexString(p.Payload))
}

// Checksum calculates the CRC-32 over the encoded header followed by payload.
func Checksum(h Header, payload []byte) uint32 {
	var head [HeaderSize]byte
	h.put(head[:])
	crc := crc32.ChecksumIEEE(head[:])
	if len(payload) > 0 {
		crc = crc32.Update(crc, crc32.IEEETable, payload)
	}
	return crc
}

// FrameSize returns the encoded size of a frame carrying payloadLen bytes.
func FrameSize(payloadLen int) int {
	return FrameOverhead + payloadLen
}

// Serialize encodes a frame.
func Serialize(h Header, payload []byte) ([]byte, error) {
	if h.PayloadLen > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	if int(h.PayloadLen) != len(payload) {
		return nil, ErrLengthMismatch
	}
	b := make([]byte, FrameSize(len(payload)))
	binary.LittleEndian.PutUint16(b, Preamble)
	h.put(b[PreambleSize:])
	off := PreambleSize + HeaderSize
	off += copy(b[off:], payload)
	binary.LittleEndian.PutUint32(b[off:], Checksum(h, payload))
	off += ChecksumSize
	binary.LittleEndian.PutUint16(b[off:], Postamble)
	return b, nil
}

// Deserialize decodes a complete frame. The returned payload doesn't alias frame.
func Deserialize(frame []byte) (Header, []byte, error) {
	if len(frame) < FrameOverhead {
		return Header{}, nil, ErrShortFrame
	}
	if binary.LittleEndian.Uint16(frame) != Preamble {
		return Header{}, nil, ErrBadPreamble
	}
	h, err := ParseHeader(frame[PreambleSize:])
	if err != nil {
		return h, nil, err
	}
	size := FrameSize(int(h.PayloadLen))
	if len(frame) < size {
		return h, nil, ErrShortFrame
	}
	if len(frame) > size {
		return h, nil, ErrLengthMismatch
	}
	if binary.LittleEndian.Uint16(frame[size-PostambleSize:]) != Postamble {
		return h, nil, ErrBadPostamble
	}
	off := PreambleSize + HeaderSize
	payload := make([]byte, h.PayloadLen)
	copy(payload, frame[off:])
	got := binary.LittleEndian.Uint32(frame[off+len(payload):])
	if want := Checksum(h, payload); want != got {
		return h, nil, &ChecksumError{Want: want, Got: got}
	}
	return h, payload, nil
}

// Decode decodes a complete frame into a Packet.
func Decode(frame []byte) (*Packet, error) {
	h, payload, err := Deserialize(frame)
	if err != nil {
		return nil, err
	}
	return &Packet{Header: h, Payload: payload}, nil
}
