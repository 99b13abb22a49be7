package link

import (
	"fmt"

	"github.com/robotalks/hostlink/pkg/link/protocol"
	"github.com/robotalks/hostlink/pkg/link/queue"
)

// Submitter accepts requests, usually a *queue.Queue.
type Submitter interface {
	Submit(src queue.Source, pkt *protocol.Packet, ackRequired bool) error
}

// DebugPrinter sends text as debug message events.
// Messages are not acknowledged by the peer.
type DebugPrinter struct {
	sub Submitter
	dir protocol.Direction
}

// NewDebugPrinter creates a DebugPrinter sending frames in dir.
func NewDebugPrinter(sub Submitter, dir protocol.Direction) *DebugPrinter {
	return &DebugPrinter{sub: sub, dir: dir}
}

// Print sends msg, truncated to the max payload size.
func (p *DebugPrinter) Print(msg string) error {
	if len(msg) > protocol.MaxPayloadSize {
		msg = msg[:protocol.MaxPayloadSize]
	}
	return p.submit([]byte(msg))
}

// Printf formats and sends a message.
func (p *DebugPrinter) Printf(format string, args ...interface{}) error {
	return p.Print(fmt.Sprintf(format, args...))
}

// Write implements io.Writer. Long writes are split into multiple messages.
// It stops at the first rejected message.
func (p *DebugPrinter) Write(b []byte) (int, error) {
	var written int
	for len(b) > 0 {
		n := len(b)
		if n > protocol.MaxPayloadSize {
			n = protocol.MaxPayloadSize
		}
		if err := p.submit(b[:n]); err != nil {
			return written, err
		}
		written += n
		b = b[n:]
	}
	return written, nil
}

func (p *DebugPrinter) submit(payload []byte) error {
	pkt, err := protocol.NewPacket(protocol.EvtPrintDbgMsg, p.dir, payload)
	if err != nil {
		return err
	}
	return p.sub.Submit(queue.SourceDebug, pkt, false)
}
