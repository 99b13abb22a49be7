package link

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/hostlink/pkg/framework"
	"github.com/robotalks/hostlink/pkg/link/fsm"
	"github.com/robotalks/hostlink/pkg/link/protocol"
)

// AckNotifier accepts ACK/NACK events, usually a *fsm.FSM.
type AckNotifier interface {
	Notify(fsm.Event) error
}

// PacketHandler is called when a packet other than ACK/NACK is received.
type PacketHandler interface {
	HandlePacket(context.Context, *protocol.Packet)
}

// HandlePacketFunc is func type of PacketHandler.
type HandlePacketFunc func(context.Context, *protocol.Packet)

// HandlePacket implements PacketHandler.
func (f HandlePacketFunc) HandlePacket(ctx context.Context, pkt *protocol.Packet) {
	f(ctx, pkt)
}

// RxStats counts received frames.
type RxStats struct {
	Frames    uint64
	Acks      uint64
	Nacks     uint64
	Ignored   uint64
	Errors    uint64
	CrcErrors uint64
}

// Receiver reads frames from the peer.
type Receiver struct {
	Reader  io.Reader
	Dir     protocol.Direction
	Acks    AckNotifier
	Handler PacketHandler
	// Closer is closed when Run returns to end a blocked Read.
	Closer io.Closer

	parser protocol.Parser
	stats  RxStats
	lock   sync.Mutex
}

// DefaultReadSize is the size of buffer for each Read.
const DefaultReadSize = 64

// NewReceiver creates a Receiver accepting frames sent in dir.
func NewReceiver(r io.Reader, dir protocol.Direction, acks AckNotifier) *Receiver {
	return &Receiver{Reader: r, Dir: dir, Acks: acks}
}

// Stats returns a snapshot of the counters.
func (r *Receiver) Stats() RxStats {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.stats
}

// Run implements framework.Runnable.
// Run returns when ctx is done, but a Read already in progress only ends
// when the Reader is closed. Set Closer to have Run close it, otherwise the
// caller closes the Reader.
func (r *Receiver) Run(ctx context.Context) error {
	if r.Closer == nil {
		return r.run(ctx)
	}
	return framework.RunWithContextCloser(ctx, r.Closer, func() error {
		return r.run(ctx)
	})
}

func (r *Receiver) run(ctx context.Context) error {
	dataCh, errCh := make(chan []byte), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.readLoop(subCtx, dataCh, errCh)
	for {
		select {
		case data := <-dataCh:
			r.Feed(ctx, data)
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				glog.Info("peer closed the link")
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Receiver) readLoop(ctx context.Context, dataCh chan []byte, errCh chan error) {
	for {
		buf := make([]byte, DefaultReadSize)
		n, err := r.Reader.Read(buf)
		if n > 0 {
			select {
			case dataCh <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

// Feed parses received bytes.
func (r *Receiver) Feed(ctx context.Context, data []byte) {
	r.parser.Feed(data, func(pr protocol.ParseResult) {
		if pr.Err != nil {
			r.frameError(pr.Err)
			return
		}
		r.handlePacket(ctx, pr.Packet)
	})
}

func (r *Receiver) frameError(err error) {
	r.lock.Lock()
	r.stats.Errors++
	if errors.Is(err, protocol.ErrCrcMismatch) {
		r.stats.CrcErrors++
	}
	r.lock.Unlock()
	glog.Warningf("rx frame dropped: %v", err)
}

func (r *Receiver) handlePacket(ctx context.Context, pkt *protocol.Packet) {
	glog.V(2).Infof("rx %s", pkt)
	var ev fsm.Event
	r.lock.Lock()
	r.stats.Frames++
	switch {
	case pkt.Header.Dir != r.Dir:
		r.stats.Ignored++
	case pkt.Header.Type.IsAck():
		r.stats.Acks++
		ev = fsm.EventAckReceived
	case pkt.Header.Type.IsNack():
		r.stats.Nacks++
		ev = fsm.EventNackReceived
	}
	r.lock.Unlock()

	if pkt.Header.Dir != r.Dir {
		glog.V(2).Infof("rx ignored, direction %s", pkt.Header.Dir)
		return
	}
	if ev != 0 {
		if r.Acks != nil {
			if err := r.Acks.Notify(ev); err != nil {
				glog.Errorf("notify %s: %v", ev, err)
			}
		}
		return
	}
	if h := r.Handler; h != nil {
		h.HandlePacket(ctx, pkt)
	}
}
