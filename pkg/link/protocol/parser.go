package protocol

import "encoding/binary"

// Parser extracts frames from a byte stream.
// It hunts for the preamble, collects a whole frame and validates it.
// A framing error drops the frame and hunts for a preamble again from the
// second byte of the rejected frame.
type Parser struct {
	state  parseState
	buf    [MaxFrameSize]byte
	recv   int
	expect int
}

// ParseResult indicates the result after one parsing step.
// At most one of Packet and Err is set.
type ParseResult struct {
	Packet *Packet
	Err    error
}

type parseState int

const (
	stateSync0     parseState = iota // waiting for low preamble byte
	stateSync1                       // waiting for high preamble byte
	stateHeader                      // collecting header
	stateRemainder                   // collecting payload, checksum and postamble
)

var (
	preambleLo = byte(Preamble & 0xff)
	preambleHi = byte(Preamble >> 8)
)

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state, p.recv, p.expect = stateSync0, 0, 0
}

// Synced tells whether the parser is inside a frame.
func (p *Parser) Synced() bool {
	return p.state >= stateHeader
}

// Parse consumes one byte and returns the results it completes.
// A rejected frame is rescanned for a preamble, so one byte may complete
// an error and a packet.
func (p *Parser) Parse(b byte) (results []ParseResult) {
	p.step(b, func(pr ParseResult) {
		results = append(results, pr)
	})
	return
}

// Feed consumes a chunk of bytes and calls fn for every result carrying a
// packet or an error.
func (p *Parser) Feed(data []byte, fn func(ParseResult)) {
	for _, b := range data {
		p.step(b, fn)
	}
}

func (p *Parser) step(b byte, fn func(ParseResult)) {
	switch p.state {
	case stateSync0:
		if b == preambleLo {
			p.state = stateSync1
		}
	case stateSync1:
		switch b {
		case preambleHi:
			p.buf[0], p.buf[1] = preambleLo, preambleHi
			p.recv = PreambleSize
			p.state = stateHeader
		case preambleLo:
			// repeated low byte, keep waiting for the high one.
		default:
			p.state = stateSync0
		}
	case stateHeader:
		p.buf[p.recv] = b
		p.recv++
		if p.recv < PreambleSize+HeaderSize {
			return
		}
		h, err := ParseHeader(p.buf[PreambleSize:p.recv])
		if err != nil {
			p.reject(err, fn)
			return
		}
		p.expect = FrameSize(int(h.PayloadLen))
		p.state = stateRemainder
	case stateRemainder:
		p.buf[p.recv] = b
		p.recv++
		if p.recv < p.expect {
			return
		}
		frame := p.buf[:p.recv]
		if binary.LittleEndian.Uint16(frame[len(frame)-PostambleSize:]) != Postamble {
			p.reject(ErrBadPostamble, fn)
			return
		}
		pkt, err := Decode(frame)
		if err != nil {
			p.reject(err, fn)
			return
		}
		p.Reset()
		fn(ParseResult{Packet: pkt})
	}
}

// reject reports err and hunts for the next preamble inside the rejected
// bytes, skipping the first one.
func (p *Parser) reject(err error, fn func(ParseResult)) {
	rest := append([]byte(nil), p.buf[1:p.recv]...)
	p.Reset()
	fn(ParseResult{Err: err})
	for _, b := range rest {
		p.step(b, fn)
	}
}
