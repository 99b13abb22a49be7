package link

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/hostlink/pkg/link/protocol"
	"github.com/robotalks/hostlink/pkg/link/queue"
)

// DefaultFWVersion is reported by a Responder by default.
const DefaultFWVersion = "hostlink-sim 1.0"

// Responder answers commands from the peer like a device does.
// Each command is acknowledged, then answered with its response.
// DropRatio and NackRatio simulate a lossy device.
type Responder struct {
	Sub       Submitter
	Dir       protocol.Direction
	FWVersion string
	DropRatio float64
	NackRatio float64

	led  bool
	rand *rand.Rand
	lock sync.Mutex
}

// NewResponder creates a Responder sending replies in dir.
func NewResponder(sub Submitter, dir protocol.Direction) *Responder {
	return &Responder{
		Sub:       sub,
		Dir:       dir,
		FWVersion: DefaultFWVersion,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// LED returns the simulated LED state.
func (r *Responder) LED() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.led
}

// HandlePacket implements PacketHandler.
func (r *Responder) HandlePacket(ctx context.Context, pkt *protocol.Packet) {
	switch pkt.Header.Type.Category() {
	case protocol.CategoryEvent:
		if pkt.Header.Type == protocol.EvtPrintDbgMsg {
			glog.Infof("[peer] %s", protocol.ASCIIString(pkt.Payload))
		} else {
			glog.Infof("[peer] event %s %s", pkt.Header.Type, protocol.HexString(pkt.Payload))
		}
		return
	case protocol.CategoryResponse:
		glog.Infof("[peer] response %s %s", pkt.Header.Type, protocol.HexString(pkt.Payload))
		return
	}

	drop, nack := r.roll()
	if drop {
		glog.V(2).Infof("drop %s", pkt)
		return
	}
	if nack {
		r.reply(protocol.ResNack, nil)
		return
	}
	r.reply(protocol.ResAck, nil)
	switch pkt.Header.Type {
	case protocol.CmdTurnOnLED:
		r.setLED(true)
		r.reply(protocol.ResLEDOn, nil)
	case protocol.CmdTurnOffLED:
		r.setLED(false)
		r.reply(protocol.ResLEDOff, nil)
	case protocol.CmdGetFWVersion:
		r.reply(protocol.ResFWVersion, []byte(r.FWVersion))
	default:
		r.reply(protocol.EvtHandlerError, []byte{byte(pkt.Header.Type)})
	}
}

func (r *Responder) roll() (drop, nack bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.rand == nil {
		r.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if r.DropRatio > 0 && r.rand.Float64() < r.DropRatio {
		return true, false
	}
	return false, r.NackRatio > 0 && r.rand.Float64() < r.NackRatio
}

func (r *Responder) setLED(on bool) {
	r.lock.Lock()
	r.led = on
	r.lock.Unlock()
}

func (r *Responder) reply(typ protocol.TypeCode, payload []byte) {
	pkt, err := protocol.NewPacket(typ, r.Dir, payload)
	if err == nil {
		err = r.Sub.Submit(queue.SourceRxHandler, pkt, false)
	}
	if err != nil {
		glog.Warningf("reply %s: %v", typ, err)
	}
}
