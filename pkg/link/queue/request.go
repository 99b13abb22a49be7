package queue

import (
	"fmt"

	"github.com/robotalks/hostlink/pkg/link/protocol"
)

// Source identifies the producer of a request.
type Source byte

// Request sources.
const (
	SourceInvalid Source = iota
	// SourceRxHandler is the receive side replying to the peer.
	SourceRxHandler
	// SourceApp is application code.
	SourceApp
	// SourceDebug is the debug printer.
	SourceDebug
	// SourceRemote is a request forwarded from a telemetry bridge.
	SourceRemote
)

// ackFlag is carried in the source byte so a stored request occupies
// exactly source + header + payload bytes.
const ackFlag byte = 0x80

// IsValid checks if the source can be stored.
func (s Source) IsValid() bool {
	return s != SourceInvalid && byte(s)&ackFlag == 0
}

func (s Source) String() string {
	switch s {
	case SourceRxHandler:
		return "rx-handler"
	case SourceApp:
		return "app"
	case SourceDebug:
		return "debug"
	case SourceRemote:
		return "remote"
	}
	return fmt.Sprintf("source(%d)", byte(s))
}

// Outcome tells how a request left the link.
type Outcome int

// Outcomes.
const (
	// OutcomeSent means the frame was handed to the transport and no ack was required.
	OutcomeSent Outcome = iota
	// OutcomeAcked means the peer acknowledged the frame.
	OutcomeAcked
	// OutcomeDropped means the retry budget was exhausted.
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeAcked:
		return "acked"
	case OutcomeDropped:
		return "dropped"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is reported once per request when it completes.
type Result struct {
	Outcome Outcome
	// Attempts counts transmissions, including resends after NACK.
	Attempts int
	// Retries counts resends after ack timeout.
	Retries int
	// SendErrors counts transmissions the transport refused.
	SendErrors int
	// Err is set when the request was dropped, or holds the last send error.
	Err error
}

// DoneFunc is called when a request completes.
type DoneFunc func(*Request, Result)

// Request is a unit of transmission.
type Request struct {
	Source      Source
	Packet      protocol.Packet
	AckRequired bool
	// Done is optional and called exactly once from the consumer.
	Done DoneFunc
}

// NewRequest creates a request for a packet.
func NewRequest(src Source, pkt *protocol.Packet, ackRequired bool) *Request {
	return &Request{Source: src, Packet: *pkt, AckRequired: ackRequired}
}

// Size returns the number of queue bytes the request occupies.
func (r *Request) Size() int {
	return EncodedSize(int(r.Packet.Header.PayloadLen))
}

// Complete invokes Done if set.
func (r *Request) Complete(res Result) {
	if r.Done != nil {
		r.Done(r, res)
	}
}

// EncodedSize returns the queue footprint of a request with payloadLen bytes.
func EncodedSize(payloadLen int) int {
	return 1 + protocol.HeaderSize + payloadLen
}

func (r *Request) String() string {
	return fmt.Sprintf("%s ack=%v %s", r.Source, r.AckRequired, &r.Packet)
}

func (r *Request) sourceByte() byte {
	b := byte(r.Source)
	if r.AckRequired {
		b |= ackFlag
	}
	return b
}
