// Package fsm implements the transmit state machine of a link.
//
// The FSM dequeues one request at a time, frames it and hands the frame to
// a non-blocking transport. Requests needing an ack are resent on NACK and
// on ack timeout, up to MaxRetries timeouts, then dropped.
//
// The FSM is single-consumer: Init, Run and the accessors used by the
// driving loop are called from one goroutine. TickTimers and Notify may be
// called from any goroutine.
package fsm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/hostlink/pkg/link/port"
	"github.com/robotalks/hostlink/pkg/link/protocol"
	"github.com/robotalks/hostlink/pkg/link/queue"
	"github.com/robotalks/hostlink/pkg/link/timer"
)

// Defaults.
const (
	DefaultAckTimeoutMs uint32 = 50
	DefaultMaxRetries          = 2
)

// maxSteps bounds the reactions processed by a single Run.
const maxSteps = 8

// Config tunes the retry policy.
type Config struct {
	// AckTimeoutMs is the number of timer ticks to wait for an ack.
	AckTimeoutMs uint32
	// MaxRetries is the number of resends after ack timeout.
	MaxRetries int
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{AckTimeoutMs: DefaultAckTimeoutMs, MaxRetries: DefaultMaxRetries}
}

// FSM is the transmit state machine.
type FSM struct {
	Config
	Notifier   StateNotifier
	Completion CompletionHandler
	TxNotifier TxNotifier

	src    RequestSource
	sender port.Sender

	state    State
	tx       *transmitState
	ackTimer timer.Event

	events Event
	stats  Stats
	lock   sync.Mutex
}

// transmitState only exists in StateTransmitPacket.
type transmitState struct {
	req        *queue.Request
	retries    int
	attempts   int
	sendErrors int
	lastErr    error
}

// reaction handles a set of events.
// action returns the next state, or false to stay without transition.
type reaction struct {
	on     Event
	action func(*FSM) (State, bool)
}

type stateDesc struct {
	entry     func(*FSM)
	during    func(*FSM)
	reactions []reaction
}

// dispatch is indexed by State. Reactions are evaluated in order and the
// first matching one wins.
var dispatch = [...]stateDesc{
	StatePollPending: {
		entry:  (*FSM).enterPollPending,
		during: (*FSM).pollPending,
		reactions: []reaction{
			{on: EventPendingPacket, action: (*FSM).dequeue},
		},
	},
	StateTransmitPacket: {
		entry: (*FSM).transmit,
		reactions: []reaction{
			{on: EventAckReceived | EventNoAckRequired, action: (*FSM).completed},
			{on: EventNackReceived, action: (*FSM).nacked},
			{on: EventAckTimeout, action: (*FSM).timedOut},
		},
	},
}

// New creates a FSM reading requests from src and sending frames to sender.
func New(src RequestSource, sender port.Sender, conf Config) *FSM {
	f := &FSM{Config: conf, src: src, sender: sender}
	f.Init()
	return f
}

// Init puts the FSM in StatePollPending.
// A request in flight is completed as dropped with ErrReset.
func (f *FSM) Init() {
	f.ackTimer.Stop()
	if tx := f.tx; tx != nil {
		f.tx = nil
		f.finish(tx, queue.OutcomeDropped, ErrReset)
	}
	f.lock.Lock()
	f.state, f.events = StatePollPending, 0
	f.stats.State, f.stats.RetryCount = StatePollPending, 0
	f.lock.Unlock()
}

// Run advances the FSM by one control tick.
// It dequeues at most one request and runs until no raised event has a
// reaction in the current state.
func (f *FSM) Run() {
	if f.ackTimer.Raised() {
		f.ackTimer.Stop()
		f.raise(EventAckTimeout)
	}
	if during := dispatch[f.state].during; during != nil {
		during(f)
	}
	for n := 0; n < maxSteps && f.react(); n++ {
	}
}

// TickTimers advances the ack timer by one millisecond.
func (f *FSM) TickTimers() {
	f.ackTimer.Tick()
}

// Notify raises EventAckReceived or EventNackReceived.
func (f *FSM) Notify(ev Event) error {
	if ev == 0 || ev&^ExternalEvents != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, ev)
	}
	f.raise(ev)
	return nil
}

// State returns the current state.
func (f *FSM) State() State {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.state
}

// RetryCount returns the number of timeout retries of the request in flight.
func (f *FSM) RetryCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.stats.RetryCount
}

// Stats returns a snapshot of the counters.
func (f *FSM) Stats() Stats {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.stats
}

func (f *FSM) raise(ev Event) {
	f.lock.Lock()
	f.events |= ev
	f.lock.Unlock()
}

func (f *FSM) raised() Event {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.events
}

func (f *FSM) clear(ev Event) {
	f.lock.Lock()
	f.events &^= ev
	f.lock.Unlock()
}

func (f *FSM) updateStats(fn func(*Stats)) {
	f.lock.Lock()
	fn(&f.stats)
	f.lock.Unlock()
}

func (f *FSM) react() bool {
	events := f.raised()
	if events == 0 {
		return false
	}
	for _, r := range dispatch[f.state].reactions {
		if events&r.on == 0 {
			continue
		}
		if next, ok := r.action(f); ok {
			f.transition(next, events&r.on)
		} else {
			f.clear(r.on)
		}
		return true
	}
	glog.V(4).Infof("fsm: %s ignores %s", f.state, events)
	f.clear(events)
	return false
}

func (f *FSM) transition(to State, cause Event) {
	from := f.state
	f.lock.Lock()
	f.state, f.events = to, 0
	f.stats.State = to
	f.lock.Unlock()
	glog.V(4).Infof("fsm: %s -[%s]-> %s", from, cause, to)
	if n := f.Notifier; n != nil {
		n.StateChanged(from, to)
	}
	if entry := dispatch[to].entry; entry != nil {
		entry(f)
	}
}

func (f *FSM) enterPollPending() {
	f.updateStats(func(s *Stats) { s.RetryCount = 0 })
}

func (f *FSM) pollPending() {
	if f.src.Pending() > 0 {
		f.raise(EventPendingPacket)
	}
}

func (f *FSM) dequeue() (State, bool) {
	req, ok := f.src.Read()
	if !ok {
		return f.state, false
	}
	f.tx = &transmitState{req: req}
	f.updateStats(func(s *Stats) {
		s.Dequeued++
		s.RetryCount = 0
	})
	return StateTransmitPacket, true
}

func (f *FSM) transmit() {
	tx := f.tx
	tx.attempts++
	frame, err := tx.req.Packet.Bytes()
	if err == nil {
		err = f.sender.Send(frame)
	}
	if err != nil {
		tx.sendErrors++
		tx.lastErr = err
		f.updateStats(func(s *Stats) {
			s.SendFailures++
			s.ConsecutiveSendFailures++
			s.LastSendError = err
		})
		if errors.Is(err, port.ErrBusy) {
			glog.V(2).Infof("tx busy: %s attempt %d", tx.req, tx.attempts)
		} else {
			glog.Warningf("tx %s attempt %d failed: %v", tx.req, tx.attempts, err)
		}
	} else {
		f.updateStats(func(s *Stats) {
			s.Frames++
			s.ConsecutiveSendFailures = 0
		})
		glog.V(2).Infof("tx %s %s", tx.req, protocol.HexString(frame))
	}
	if n := f.TxNotifier; n != nil {
		n.FrameSent(frame, tx.attempts, err)
	}
	// A frame the transport refused is resent through the timeout path,
	// even when no ack is required.
	if tx.req.AckRequired || err != nil {
		f.ackTimer.Start(f.ackTimeout(), false)
		return
	}
	f.raise(EventNoAckRequired)
}

func (f *FSM) completed() (State, bool) {
	f.ackTimer.Stop()
	tx := f.tx
	f.tx = nil
	outcome := queue.OutcomeSent
	if tx.req.AckRequired {
		outcome = queue.OutcomeAcked
		f.updateStats(func(s *Stats) { s.Acked++ })
	}
	f.finish(tx, outcome, tx.lastErr)
	return StatePollPending, true
}

func (f *FSM) nacked() (State, bool) {
	f.ackTimer.Stop()
	f.updateStats(func(s *Stats) { s.Nacked++ })
	return StateTransmitPacket, true
}

func (f *FSM) timedOut() (State, bool) {
	f.ackTimer.Stop()
	tx := f.tx
	f.updateStats(func(s *Stats) { s.Timeouts++ })
	if tx.retries < f.maxRetries() {
		tx.retries++
		f.updateStats(func(s *Stats) { s.RetryCount = tx.retries })
		return StateTransmitPacket, true
	}
	f.tx = nil
	err := ErrRetriesExhausted
	if tx.lastErr != nil {
		err = fmt.Errorf("%w: last send error: %v", ErrRetriesExhausted, tx.lastErr)
	}
	glog.Warningf("drop %s after %d attempts", tx.req, tx.attempts)
	f.updateStats(func(s *Stats) { s.Dropped++ })
	f.finish(tx, queue.OutcomeDropped, err)
	return StatePollPending, true
}

func (f *FSM) finish(tx *transmitState, outcome queue.Outcome, err error) {
	res := queue.Result{
		Outcome:    outcome,
		Attempts:   tx.attempts,
		Retries:    tx.retries,
		SendErrors: tx.sendErrors,
		Err:        err,
	}
	f.updateStats(func(s *Stats) {
		s.Completed++
		s.RetryCount = 0
	})
	tx.req.Complete(res)
	if h := f.Completion; h != nil {
		h.HandleCompletion(tx.req, res)
	}
}

func (f *FSM) ackTimeout() uint32 {
	if f.AckTimeoutMs == 0 {
		return DefaultAckTimeoutMs
	}
	return f.AckTimeoutMs
}

func (f *FSM) maxRetries() int {
	if f.MaxRetries < 0 {
		return 0
	}
	return f.MaxRetries
}
