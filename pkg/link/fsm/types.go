package fsm

import (
	"fmt"
	"strings"

	"github.com/robotalks/hostlink/pkg/link/queue"
)

// State is the transmit state.
type State int

// States.
const (
	// StatePollPending waits for the queue to have a request.
	StatePollPending State = iota
	// StateTransmitPacket sends the current request and waits for its ack.
	StateTransmitPacket
)

func (s State) String() string {
	switch s {
	case StatePollPending:
		return "PollPending"
	case StateTransmitPacket:
		return "TransmitPacket"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Event is a set of raised events.
type Event uint8

// Events.
const (
	// EventPendingPacket is raised when the queue has a request.
	EventPendingPacket Event = 1 << iota
	// EventNoAckRequired is raised after sending a request needing no ack.
	EventNoAckRequired
	// EventAckReceived is raised by the receive side.
	EventAckReceived
	// EventNackReceived is raised by the receive side.
	EventNackReceived
	// EventAckTimeout is raised when the ack timer expires.
	EventAckTimeout

	// ExternalEvents are the events accepted by Notify.
	ExternalEvents = EventAckReceived | EventNackReceived
)

var eventNames = []string{
	"PendingPacket",
	"NoAckRequired",
	"AckReceived",
	"NackReceived",
	"AckTimeout",
}

// Has checks if all events in e2 are raised in e.
func (e Event) Has(e2 Event) bool {
	return e&e2 == e2
}

func (e Event) String() string {
	if e == 0 {
		return "none"
	}
	var names []string
	for n, name := range eventNames {
		if e&(1<<uint(n)) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// RequestSource is where the FSM dequeues requests from.
type RequestSource interface {
	Pending() int
	Read() (*queue.Request, bool)
}

// StateNotifier is called when the FSM changes state.
// Re-entering a state is reported as well.
type StateNotifier interface {
	StateChanged(from, to State)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(from, to State)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(from, to State) {
	f(from, to)
}

// CompletionHandler is called when a request completes.
type CompletionHandler interface {
	HandleCompletion(*queue.Request, queue.Result)
}

// HandleCompletionFunc is func type of CompletionHandler.
type HandleCompletionFunc func(*queue.Request, queue.Result)

// HandleCompletion implements CompletionHandler.
func (f HandleCompletionFunc) HandleCompletion(req *queue.Request, res queue.Result) {
	f(req, res)
}

// TxNotifier is called after each frame is handed to the transport.
// err is the error returned by the transport, nil if accepted.
type TxNotifier interface {
	FrameSent(frame []byte, attempt int, err error)
}

// FrameSentFunc is func type of TxNotifier.
type FrameSentFunc func(frame []byte, attempt int, err error)

// FrameSent implements TxNotifier.
func (f FrameSentFunc) FrameSent(frame []byte, attempt int, err error) {
	f(frame, attempt, err)
}

// Stats is a snapshot of FSM counters.
type Stats struct {
	State      State
	RetryCount int

	Dequeued  uint64
	Frames    uint64
	Completed uint64
	Acked     uint64
	Nacked    uint64
	Timeouts  uint64
	Dropped   uint64

	SendFailures uint64
	// ConsecutiveSendFailures resets when the transport accepts a frame.
	ConsecutiveSendFailures uint64
	LastSendError           error
}
