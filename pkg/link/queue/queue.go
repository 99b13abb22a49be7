package queue

import (
	"encoding/binary"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/hostlink/pkg/link/protocol"
)

// DefaultCapacity is the default byte capacity of a Queue.
const DefaultCapacity = 1024

// Queue holds serialized transmit requests in submission order.
// Write may be called from any goroutine; Read is meant for a single consumer.
// A stored request never becomes visible partially.
type Queue struct {
	ring    *Ring
	pending int
	// callbacks are kept aside in the same order as stored requests.
	done []DoneFunc
	lock sync.Mutex
}

// New creates a Queue with the given byte capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ring: NewRing(capacity)}
}

// Cap returns the byte capacity.
func (q *Queue) Cap() int {
	return q.ring.Cap()
}

// Free returns the number of free bytes.
func (q *Queue) Free() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.ring.Free()
}

// Pending returns the number of whole requests stored.
func (q *Queue) Pending() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.pending
}

// Submit queues a packet on behalf of src.
func (q *Queue) Submit(src Source, pkt *protocol.Packet, ackRequired bool) error {
	return q.Write(NewRequest(src, pkt, ackRequired))
}

// Write appends a request. It fails without side effects if the payload is
// invalid or the request doesn't fit.
func (q *Queue) Write(req *Request) error {
	h := req.Packet.Header
	if h.PayloadLen > protocol.MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	if int(h.PayloadLen) != len(req.Packet.Payload) {
		return ErrLengthMismatch
	}
	if !req.Source.IsValid() {
		return ErrInvalidSource
	}
	head := append([]byte{req.sourceByte()}, h.Bytes()...)

	q.lock.Lock()
	defer q.lock.Unlock()
	if q.ring.Free() < req.Size() {
		glog.V(4).Infof("queue: no space for %d bytes, free %d", req.Size(), q.ring.Free())
		return ErrQueueFull
	}
	// Free space is checked above, so neither write can fail.
	q.ring.Write(head)
	q.ring.Write(req.Packet.Payload[:h.PayloadLen])
	q.done = append(q.done, req.Done)
	q.pending++
	glog.V(4).Infof("queue: pending %d, free %d bytes", q.pending, q.ring.Free())
	return nil
}

// Read removes and returns the oldest request.
func (q *Queue) Read() (*Request, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	req := q.peek()
	if req == nil {
		return nil, false
	}
	q.ring.Discard(req.Size())
	q.done[0] = nil
	q.done = q.done[1:]
	q.pending--
	return req, true
}

// Fetch returns the oldest request without removing it.
func (q *Queue) Fetch() (*Request, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	req := q.peek()
	return req, req != nil
}

func (q *Queue) peek() *Request {
	if q.pending == 0 {
		return nil
	}
	var head [1 + protocol.HeaderSize]byte
	q.ring.Peek(head[:], 0)
	req := &Request{
		Source:      Source(head[0] &^ ackFlag),
		AckRequired: head[0]&ackFlag != 0,
		Done:        q.done[0],
	}
	req.Packet.Header = protocol.Header{
		Type:       protocol.TypeCode(head[1]),
		Dir:        protocol.Direction(head[2]),
		PayloadLen: binary.LittleEndian.Uint16(head[3:]),
	}
	req.Packet.Payload = make([]byte, req.Packet.Header.PayloadLen)
	q.ring.Peek(req.Packet.Payload, len(head))
	return req
}
