package fsm

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/hostlink/pkg/link/port"
	"github.com/robotalks/hostlink/pkg/link/protocol"
	"github.com/robotalks/hostlink/pkg/link/queue"
)

type fakeSender struct {
	frames [][]byte
	errs   []error
}

func (s *fakeSender) Send(b []byte) error {
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.frames = append(s.frames, append([]byte(nil), b...))
	return nil
}

type completion struct {
	req *queue.Request
	res queue.Result
}

type fixture struct {
	t      *testing.T
	q      *queue.Queue
	sender *fakeSender
	fsm    *FSM
	done   []completion
}

func newFixture(t *testing.T) *fixture {
	x := &fixture{t: t, q: queue.New(queue.DefaultCapacity), sender: &fakeSender{}}
	x.fsm = New(x.q, x.sender, DefaultConfig())
	x.fsm.Completion = HandleCompletionFunc(func(req *queue.Request, res queue.Result) {
		x.done = append(x.done, completion{req, res})
	})
	return x
}

func (x *fixture) submit(typ protocol.TypeCode, payload []byte, ack bool) {
	pkt, err := protocol.NewPacket(typ, protocol.DirTargetToHost, payload)
	require.NoError(x.t, err)
	require.NoError(x.t, x.q.Submit(queue.SourceApp, pkt, ack))
}

func (x *fixture) tick(n int) {
	for i := 0; i < n; i++ {
		x.fsm.TickTimers()
	}
}

func (x *fixture) notify(ev Event) {
	require.NoError(x.t, x.fsm.Notify(ev))
}

func TestDebugMessageSentInOneRun(t *testing.T) {
	x := newFixture(t)
	pkt, err := protocol.NewPacket(protocol.EvtPrintDbgMsg, protocol.DirTargetToHost, []byte("booting"))
	require.NoError(t, err)
	require.NoError(t, x.q.Submit(queue.SourceDebug, pkt, false))
	require.Equal(t, queue.DefaultCapacity-(4+7+1), x.q.Free())

	x.fsm.Run()
	require.Len(t, x.sender.frames, 1)
	require.Len(t, x.sender.frames[0], 19)
	require.False(t, x.fsm.ackTimer.Active())
	require.Equal(t, StatePollPending, x.fsm.State())
	require.Equal(t, 0, x.fsm.RetryCount())
	require.Equal(t, 0, x.q.Pending())

	require.Len(t, x.done, 1)
	require.Equal(t, queue.OutcomeSent, x.done[0].res.Outcome)
	require.Equal(t, 1, x.done[0].res.Attempts)
	require.NoError(t, x.done[0].res.Err)
}

func TestNoAckRequestsOnePerRun(t *testing.T) {
	x := newFixture(t)
	for n := 0; n < 3; n++ {
		x.submit(protocol.EvtPrintDbgMsg, []byte{byte(n)}, false)
	}
	for n := 1; n <= 3; n++ {
		x.fsm.Run()
		require.Len(t, x.sender.frames, n)
		require.Equal(t, StatePollPending, x.fsm.State())
	}
	x.fsm.Run()
	require.Len(t, x.sender.frames, 3)
	require.Equal(t, uint64(3), x.fsm.Stats().Dequeued)
}

func TestAckBeforeTimeout(t *testing.T) {
	x := newFixture(t)
	x.submit(protocol.CmdTurnOnLED, nil, true)
	x.fsm.Run()
	require.Equal(t, StateTransmitPacket, x.fsm.State())
	require.True(t, x.fsm.ackTimer.Active())
	require.Len(t, x.sender.frames, 1)

	x.tick(49)
	x.notify(EventAckReceived)
	x.fsm.Run()
	require.Equal(t, StatePollPending, x.fsm.State())
	require.False(t, x.fsm.ackTimer.Active())
	require.Len(t, x.sender.frames, 1)
	require.Equal(t, 0, x.fsm.RetryCount())
	require.Len(t, x.done, 1)
	require.Equal(t, queue.OutcomeAcked, x.done[0].res.Outcome)
	require.Equal(t, 0, x.done[0].res.Retries)
}

func TestTimeoutTwiceThenAck(t *testing.T) {
	x := newFixture(t)
	x.submit(protocol.CmdGetFWVersion, nil, true)

	x.fsm.Run()
	x.tick(int(DefaultAckTimeoutMs))
	x.fsm.Run()
	require.Equal(t, 1, x.fsm.RetryCount())
	x.tick(int(DefaultAckTimeoutMs))
	x.fsm.Run()
	require.Equal(t, 2, x.fsm.RetryCount())
	require.Equal(t, StateTransmitPacket, x.fsm.State())

	x.notify(EventAckReceived)
	x.fsm.Run()
	require.Len(t, x.sender.frames, 3)
	require.Equal(t, x.sender.frames[0], x.sender.frames[1])
	require.Equal(t, x.sender.frames[0], x.sender.frames[2])
	require.Equal(t, StatePollPending, x.fsm.State())
	require.Equal(t, 0, x.fsm.RetryCount())
	require.Len(t, x.done, 1)
	require.Equal(t, queue.OutcomeAcked, x.done[0].res.Outcome)
	require.Equal(t, 3, x.done[0].res.Attempts)
	require.Equal(t, 2, x.done[0].res.Retries)
}

func TestDropAfterRetriesExhausted(t *testing.T) {
	x := newFixture(t)
	var doneRes *queue.Result
	pkt, err := protocol.NewPacket(protocol.CmdTurnOffLED, protocol.DirTargetToHost, nil)
	require.NoError(t, err)
	req := queue.NewRequest(queue.SourceApp, pkt, true)
	req.Done = func(_ *queue.Request, res queue.Result) { doneRes = &res }
	require.NoError(t, x.q.Write(req))

	x.fsm.Run()
	for n := 0; n < DefaultMaxRetries+1; n++ {
		require.Nil(t, doneRes)
		x.tick(int(DefaultAckTimeoutMs))
		x.fsm.Run()
	}
	require.Len(t, x.sender.frames, DefaultMaxRetries+1)
	require.Equal(t, StatePollPending, x.fsm.State())
	require.NotNil(t, doneRes)
	require.Equal(t, queue.OutcomeDropped, doneRes.Outcome)
	require.True(t, errors.Is(doneRes.Err, ErrRetriesExhausted))
	require.Equal(t, uint64(1), x.fsm.Stats().Dropped)

	// next request starts with a fresh retry budget.
	x.submit(protocol.CmdTurnOnLED, nil, true)
	x.fsm.Run()
	require.Equal(t, StateTransmitPacket, x.fsm.State())
	require.Equal(t, 0, x.fsm.RetryCount())
}

func TestNackResendsWithoutRetryBudget(t *testing.T) {
	x := newFixture(t)
	x.submit(protocol.CmdTurnOnLED, []byte{1, 2, 3}, true)
	x.fsm.Run()
	for n := 0; n < 10; n++ {
		x.tick(int(DefaultAckTimeoutMs) - 1)
		x.notify(EventNackReceived)
		x.fsm.Run()
		require.Equal(t, StateTransmitPacket, x.fsm.State())
		require.Equal(t, 0, x.fsm.RetryCount())
	}
	require.Len(t, x.sender.frames, 11)
	for _, frame := range x.sender.frames[1:] {
		require.Equal(t, x.sender.frames[0], frame)
	}
	// NACK restarts the timeout window.
	x.tick(int(DefaultAckTimeoutMs) - 1)
	x.fsm.Run()
	require.Len(t, x.sender.frames, 11)
	x.notify(EventAckReceived)
	x.fsm.Run()
	require.Equal(t, StatePollPending, x.fsm.State())
	require.Equal(t, 11, x.done[0].res.Attempts)
	require.Equal(t, uint64(10), x.fsm.Stats().Nacked)
}

func TestAckTakesPriorityOverTimeout(t *testing.T) {
	x := newFixture(t)
	x.submit(protocol.CmdTurnOnLED, nil, true)
	x.fsm.Run()
	x.tick(int(DefaultAckTimeoutMs))
	x.notify(EventAckReceived | EventNackReceived)
	x.fsm.Run()
	require.Equal(t, StatePollPending, x.fsm.State())
	require.Len(t, x.sender.frames, 1)
	require.Equal(t, queue.OutcomeAcked, x.done[0].res.Outcome)
}

func TestStaleAckIgnored(t *testing.T) {
	x := newFixture(t)
	x.notify(EventAckReceived)
	x.fsm.Run()
	require.Equal(t, StatePollPending, x.fsm.State())

	x.submit(protocol.CmdTurnOnLED, nil, true)
	x.fsm.Run()
	require.Equal(t, StateTransmitPacket, x.fsm.State())
	x.fsm.Run()
	require.Equal(t, StateTransmitPacket, x.fsm.State())
	require.Empty(t, x.done)
}

func TestAckBeforeDequeueCleared(t *testing.T) {
	x := newFixture(t)
	x.submit(protocol.CmdTurnOnLED, nil, true)
	x.notify(EventAckReceived)
	x.fsm.Run()
	require.Equal(t, StateTransmitPacket, x.fsm.State())
	require.Empty(t, x.done)
}

func TestSendFailureRetriedThroughTimeout(t *testing.T) {
	x := newFixture(t)
	x.sender.errs = []error{port.ErrBusy, io.ErrClosedPipe}
	var sent []error
	x.fsm.TxNotifier = FrameSentFunc(func(frame []byte, attempt int, err error) {
		require.Equal(t, len(sent)+1, attempt)
		sent = append(sent, err)
	})
	x.submit(protocol.EvtPrintDbgMsg, []byte("hi"), false)

	x.fsm.Run()
	require.Equal(t, StateTransmitPacket, x.fsm.State())
	require.True(t, x.fsm.ackTimer.Active())
	stats := x.fsm.Stats()
	require.Equal(t, uint64(1), stats.SendFailures)
	require.Equal(t, port.ErrBusy, stats.LastSendError)

	x.tick(int(DefaultAckTimeoutMs))
	x.fsm.Run()
	require.Equal(t, uint64(2), x.fsm.Stats().ConsecutiveSendFailures)

	x.tick(int(DefaultAckTimeoutMs))
	x.fsm.Run()
	require.Equal(t, StatePollPending, x.fsm.State())
	require.Equal(t, []error{port.ErrBusy, io.ErrClosedPipe, nil}, sent)
	require.Len(t, x.sender.frames, 1)

	stats = x.fsm.Stats()
	require.Equal(t, uint64(0), stats.ConsecutiveSendFailures)
	require.Len(t, x.done, 1)
	res := x.done[0].res
	require.Equal(t, queue.OutcomeSent, res.Outcome)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, 2, res.SendErrors)
	require.Equal(t, io.ErrClosedPipe, res.Err)
}

func TestPermanentSendFailureDrops(t *testing.T) {
	x := newFixture(t)
	x.sender.errs = []error{io.ErrClosedPipe, io.ErrClosedPipe, io.ErrClosedPipe}
	x.submit(protocol.EvtPrintDbgMsg, []byte("hi"), false)
	x.fsm.Run()
	for n := 0; n < DefaultMaxRetries+1; n++ {
		x.tick(int(DefaultAckTimeoutMs))
		x.fsm.Run()
	}
	require.Len(t, x.done, 1)
	res := x.done[0].res
	require.Equal(t, queue.OutcomeDropped, res.Outcome)
	require.True(t, errors.Is(res.Err, ErrRetriesExhausted))
	require.Contains(t, res.Err.Error(), io.ErrClosedPipe.Error())
	require.Equal(t, uint64(3), x.fsm.Stats().ConsecutiveSendFailures)
}

func TestStateNotifier(t *testing.T) {
	x := newFixture(t)
	var changes []State
	x.fsm.Notifier = StateChangedFunc(func(from, to State) {
		changes = append(changes, from, to)
	})
	x.submit(protocol.CmdTurnOnLED, nil, true)
	x.fsm.Run()
	x.notify(EventNackReceived)
	x.fsm.Run()
	x.notify(EventAckReceived)
	x.fsm.Run()
	require.Equal(t, []State{
		StatePollPending, StateTransmitPacket,
		StateTransmitPacket, StateTransmitPacket,
		StateTransmitPacket, StatePollPending,
	}, changes)
}

func TestNotifyRejectsInternalEvents(t *testing.T) {
	x := newFixture(t)
	for _, ev := range []Event{0, EventPendingPacket, EventNoAckRequired, EventAckTimeout, EventAckReceived | EventAckTimeout} {
		err := x.fsm.Notify(ev)
		require.True(t, errors.Is(err, ErrInvalidEvent), ev.String())
	}
}

func TestInitAbandonsInFlight(t *testing.T) {
	x := newFixture(t)
	x.submit(protocol.CmdTurnOnLED, nil, true)
	x.fsm.Run()
	x.fsm.Init()
	require.Equal(t, StatePollPending, x.fsm.State())
	require.False(t, x.fsm.ackTimer.Active())
	require.Len(t, x.done, 1)
	require.Equal(t, ErrReset, x.done[0].res.Err)
}

func TestEventString(t *testing.T) {
	require.Equal(t, "none", Event(0).String())
	require.Equal(t, "AckReceived|NackReceived", ExternalEvents.String())
	require.Equal(t, "TransmitPacket", StateTransmitPacket.String())
}
