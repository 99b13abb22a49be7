package link

import (
	"context"
	"fmt"
	"io"

	"github.com/robotalks/hostlink/pkg/framework"
	"github.com/robotalks/hostlink/pkg/link/fsm"
	"github.com/robotalks/hostlink/pkg/link/port"
	"github.com/robotalks/hostlink/pkg/link/protocol"
	"github.com/robotalks/hostlink/pkg/link/queue"
)

// Config configures a Link.
type Config struct {
	// Dir is the direction of frames this node sends.
	Dir           protocol.Direction
	QueueCapacity int
	// TxBacklog is the number of frames the transport buffers.
	TxBacklog int
	FSM       fsm.Config
}

// DefaultConfig returns the configuration of a target node.
func DefaultConfig() Config {
	return Config{
		Dir:           protocol.DirTargetToHost,
		QueueCapacity: queue.DefaultCapacity,
		TxBacklog:     port.DefaultBacklog,
		FSM:           fsm.DefaultConfig(),
	}
}

// Status is a snapshot of the link.
type Status struct {
	Pending int
	Free    int
	TxQueue int
	Tx      fsm.Stats
	Rx      RxStats
}

func (s Status) String() string {
	return fmt.Sprintf("%s pending=%d free=%d txq=%d retries=%d frames=%d acked=%d nacked=%d timeouts=%d dropped=%d sendfail=%d rx=%d crcerr=%d",
		s.Tx.State, s.Pending, s.Free, s.TxQueue, s.Tx.RetryCount,
		s.Tx.Frames, s.Tx.Acked, s.Tx.Nacked, s.Tx.Timeouts, s.Tx.Dropped,
		s.Tx.SendFailures, s.Rx.Frames, s.Rx.CrcErrors)
}

// Link is a reliable link over a byte channel.
type Link struct {
	Queue    *queue.Queue
	FSM      *fsm.FSM
	Writer   *port.Writer
	Receiver *Receiver
	Debug    *DebugPrinter

	dir protocol.Direction
}

// New creates a Link over rw.
func New(rw io.ReadWriter, conf Config) *Link {
	if !conf.Dir.IsValid() {
		conf.Dir = protocol.DirTargetToHost
	}
	l := &Link{
		Queue:  queue.New(conf.QueueCapacity),
		Writer: port.NewWriter(rw, conf.TxBacklog),
		dir:    conf.Dir,
	}
	l.FSM = fsm.New(l.Queue, l.Writer, conf.FSM)
	l.Receiver = NewReceiver(rw, conf.Dir.Reverse(), l.FSM)
	if c, ok := rw.(io.Closer); ok {
		l.Receiver.Closer = c
	}
	l.Debug = NewDebugPrinter(l.Queue, conf.Dir)
	return l
}

// Dir returns the direction of frames this node sends.
func (l *Link) Dir() protocol.Direction {
	return l.dir
}

// Submit enqueues a request.
func (l *Link) Submit(src queue.Source, pkt *protocol.Packet, ackRequired bool) error {
	return l.Queue.Submit(src, pkt, ackRequired)
}

// Send enqueues a packet from the application.
func (l *Link) Send(typ protocol.TypeCode, payload []byte, ackRequired bool) error {
	pkt, err := protocol.NewPacket(typ, l.dir, payload)
	if err != nil {
		return err
	}
	return l.Queue.Submit(queue.SourceApp, pkt, ackRequired)
}

// Do sends a packet requiring ack and waits until it completes.
// An error is returned if the request is rejected or dropped.
func (l *Link) Do(ctx context.Context, typ protocol.TypeCode, payload []byte) (queue.Result, error) {
	pkt, err := protocol.NewPacket(typ, l.dir, payload)
	if err != nil {
		return queue.Result{}, err
	}
	resultCh := make(chan queue.Result, 1)
	req := queue.NewRequest(queue.SourceApp, pkt, true)
	req.Done = func(_ *queue.Request, res queue.Result) {
		resultCh <- res
	}
	if err := l.Queue.Write(req); err != nil {
		return queue.Result{}, err
	}
	select {
	case <-ctx.Done():
		return queue.Result{}, ctx.Err()
	case res := <-resultCh:
		if res.Outcome == queue.OutcomeDropped {
			return res, res.Err
		}
		return res, nil
	}
}

// Status returns a snapshot of the link.
func (l *Link) Status() Status {
	return Status{
		Pending: l.Queue.Pending(),
		Free:    l.Queue.Free(),
		TxQueue: l.Writer.Queued(),
		Tx:      l.FSM.Stats(),
		Rx:      l.Receiver.Stats(),
	}
}

// Control implements framework.Controller.
func (l *Link) Control(framework.ControlContext) error {
	l.FSM.Run()
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (l *Link) AddToLoop(loop *framework.Loop) {
	loop.AddController(framework.PrLvTransmit, l)
	loop.AddTicker(framework.TickFunc(l.FSM.TickTimers))
	loop.AddRunnable(
		framework.NamedRun("tx", l.Writer),
		framework.NamedRun("rx", l.Receiver),
	)
}
