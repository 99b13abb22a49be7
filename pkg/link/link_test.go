package link

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/hostlink/pkg/framework"
	"github.com/robotalks/hostlink/pkg/link/fsm"
	"github.com/robotalks/hostlink/pkg/link/protocol"
	"github.com/robotalks/hostlink/pkg/link/queue"
)

type linkPair struct {
	target    *Link
	host      *Link
	responder *Responder
	packets   chan *protocol.Packet
	cancel    func()
}

func newLinkPair(t *testing.T, dropRatio float64) *linkPair {
	a, b := net.Pipe()
	p := &linkPair{packets: make(chan *protocol.Packet, 16)}
	p.target = New(a, DefaultConfig())
	hostConf := DefaultConfig()
	hostConf.Dir = protocol.DirHostToTarget
	p.host = New(b, hostConf)
	p.responder = NewResponder(p.target.Queue, p.target.Dir())
	p.responder.DropRatio = dropRatio
	p.target.Receiver.Handler = p.responder
	p.host.Receiver.Handler = HandlePacketFunc(func(ctx context.Context, pkt *protocol.Packet) {
		p.packets <- pkt
	})

	ctx, cancel := context.WithCancel(context.Background())
	for _, l := range []*Link{p.target, p.host} {
		loop := framework.NewLoop().Add(l)
		go loop.Run(ctx)
	}
	p.cancel = func() {
		cancel()
		a.Close()
		b.Close()
	}
	return p
}

func (p *linkPair) next(t *testing.T) *protocol.Packet {
	select {
	case pkt := <-p.packets:
		return pkt
	case <-time.After(2 * time.Second):
		t.Fatal("no packet received")
	}
	return nil
}

func TestLinkCommandRoundTrip(t *testing.T) {
	p := newLinkPair(t, 0)
	defer p.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := p.host.Do(ctx, protocol.CmdTurnOnLED, nil)
	require.NoError(t, err)
	require.Equal(t, queue.OutcomeAcked, res.Outcome)
	require.Equal(t, protocol.ResLEDOn, p.next(t).Header.Type)
	require.True(t, p.responder.LED())

	res, err = p.host.Do(ctx, protocol.CmdGetFWVersion, nil)
	require.NoError(t, err)
	require.Equal(t, queue.OutcomeAcked, res.Outcome)
	pkt := p.next(t)
	require.Equal(t, protocol.ResFWVersion, pkt.Header.Type)
	require.Equal(t, DefaultFWVersion, string(pkt.Payload))

	require.NoError(t, p.target.Debug.Printf("led=%v", p.responder.LED()))
	pkt = p.next(t)
	require.Equal(t, protocol.EvtPrintDbgMsg, pkt.Header.Type)
	require.Equal(t, protocol.DirTargetToHost, pkt.Header.Dir)
	require.Equal(t, "led=true", string(pkt.Payload))

	status := p.host.Status()
	require.Equal(t, uint64(2), status.Tx.Acked)
	require.Equal(t, fsm.StatePollPending, status.Tx.State)
}

func TestLinkDropsWhenPeerSilent(t *testing.T) {
	p := newLinkPair(t, 1)
	defer p.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := p.host.Do(ctx, protocol.CmdTurnOffLED, nil)
	require.True(t, errors.Is(err, fsm.ErrRetriesExhausted))
	require.Equal(t, queue.OutcomeDropped, res.Outcome)
	require.Equal(t, fsm.DefaultMaxRetries+1, res.Attempts)
	require.Equal(t, uint64(1), p.host.Status().Tx.Dropped)
}

func TestLinkSendRejectsLargePayload(t *testing.T) {
	l := New(&bytes.Buffer{}, DefaultConfig())
	require.Equal(t, protocol.ErrPayloadTooLarge, l.Send(protocol.CmdTurnOnLED, make([]byte, protocol.MaxPayloadSize+1), true))
	require.NoError(t, l.Send(protocol.CmdTurnOnLED, nil, true))
	require.Equal(t, 1, l.Status().Pending)
}
