package protocol

import "fmt"

// Frame sizes.
const (
	MaxPayloadSize = 256

	PreambleSize  = 2
	HeaderSize    = 4
	ChecksumSize  = 4
	PostambleSize = 2

	// FrameOverhead is the size of a frame carrying an empty payload.
	FrameOverhead = PreambleSize + HeaderSize + ChecksumSize + PostambleSize
	// MaxFrameSize is the size of a frame carrying the largest payload.
	MaxFrameSize = FrameOverhead + MaxPayloadSize
)

// Frame sentinels.
const (
	Preamble  uint16 = 0xFF7F
	Postamble uint16 = 0xDEDF
)

// Direction tells which side originated a packet.
type Direction byte

// Directions.
const (
	DirTargetToHost Direction = 0xAA
	DirHostToTarget Direction = 0xBB
)

// IsValid checks if it's a known direction.
func (d Direction) IsValid() bool {
	return d == DirTargetToHost || d == DirHostToTarget
}

// Reverse returns the direction of replies to a packet sent in d.
func (d Direction) Reverse() Direction {
	switch d {
	case DirTargetToHost:
		return DirHostToTarget
	case DirHostToTarget:
		return DirTargetToHost
	}
	return d
}

func (d Direction) String() string {
	switch d {
	case DirTargetToHost:
		return "target->host"
	case DirHostToTarget:
		return "host->target"
	}
	return fmt.Sprintf("dir(%02x)", byte(d))
}

// ParseDirection accepts "target" or "host" naming the sending side.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "target", "target->host":
		return DirTargetToHost, nil
	case "host", "host->target":
		return DirHostToTarget, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Category is the class of a type code.
type Category int

// Categories, selected by type code range.
const (
	CategoryCommand Category = iota
	CategoryEvent
	CategoryResponse
)

func (c Category) String() string {
	switch c {
	case CategoryCommand:
		return "command"
	case CategoryEvent:
		return "event"
	default:
		return "response"
	}
}

// Type code ranges.
const (
	CmdStart TypeCode = 0x00
	CmdEnd   TypeCode = 0x55
	EvtStart TypeCode = 0x56
	EvtEnd   TypeCode = 0xAB
	ResStart TypeCode = 0xAC
	ResEnd   TypeCode = 0xFF
)

// Known type codes. Commands and responses share values in both directions.
const (
	CmdTurnOnLED    TypeCode = CmdStart + 1
	CmdTurnOffLED   TypeCode = CmdStart + 2
	CmdGetFWVersion TypeCode = CmdStart + 3

	EvtHandlerError TypeCode = EvtStart + 1
	EvtPrintDbgMsg  TypeCode = EvtStart + 2

	ResAck       TypeCode = ResStart + 1
	ResNack      TypeCode = ResStart + 2
	ResLEDOn     TypeCode = ResStart + 3
	ResLEDOff    TypeCode = ResStart + 4
	ResFWVersion TypeCode = ResStart + 5
)

// TypeCode identifies a command, an event or a response.
type TypeCode byte

// Category gets the category from the value range.
func (c TypeCode) Category() Category {
	switch {
	case c <= CmdEnd:
		return CategoryCommand
	case c <= EvtEnd:
		return CategoryEvent
	default:
		return CategoryResponse
	}
}

// IsAck tells whether c is a positive acknowledgment.
func (c TypeCode) IsAck() bool { return c == ResAck }

// IsNack tells whether c is a negative acknowledgment.
func (c TypeCode) IsNack() bool { return c == ResNack }

var typeNames = map[TypeCode]string{
	CmdTurnOnLED:    "turn-on-led",
	CmdTurnOffLED:   "turn-off-led",
	CmdGetFWVersion: "get-fw-version",
	EvtHandlerError: "handler-error",
	EvtPrintDbgMsg:  "print-dbg-msg",
	ResAck:          "ack",
	ResNack:         "nack",
	ResLEDOn:        "led-on",
	ResLEDOff:       "led-off",
	ResFWVersion:    "fw-version",
}

func (c TypeCode) String() string {
	if name, ok := typeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("%s(%02x)", c.Category(), byte(c))
}
