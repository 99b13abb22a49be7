package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/hostlink/pkg/link/protocol"
)

func mustPacket(t *testing.T, typ protocol.TypeCode, payload []byte) *protocol.Packet {
	pkt, err := protocol.NewPacket(typ, protocol.DirTargetToHost, payload)
	require.NoError(t, err)
	return pkt
}

func TestQueueDebugMessageFootprint(t *testing.T) {
	q := New(DefaultCapacity)
	require.NoError(t, q.Submit(SourceDebug, mustPacket(t, protocol.EvtPrintDbgMsg, []byte("booting")), false))
	require.Equal(t, 1, q.Pending())
	require.Equal(t, DefaultCapacity-(4+7+1), q.Free())
}

func TestQueueFIFO(t *testing.T) {
	q := New(DefaultCapacity)
	for n := 0; n < 5; n++ {
		payload := []byte(fmt.Sprintf("msg-%d", n))
		require.NoError(t, q.Submit(SourceApp, mustPacket(t, protocol.CmdStart+protocol.TypeCode(n), payload), n%2 == 0))
	}
	require.Equal(t, 5, q.Pending())
	for n := 0; n < 5; n++ {
		req, ok := q.Read()
		require.True(t, ok)
		require.Equal(t, SourceApp, req.Source)
		require.Equal(t, n%2 == 0, req.AckRequired)
		require.Equal(t, protocol.CmdStart+protocol.TypeCode(n), req.Packet.Header.Type)
		require.Equal(t, protocol.DirTargetToHost, req.Packet.Header.Dir)
		require.Equal(t, []byte(fmt.Sprintf("msg-%d", n)), req.Packet.Payload)
	}
	_, ok := q.Read()
	require.False(t, ok)
	_, ok = q.Fetch()
	require.False(t, ok)
}

func TestQueueFetchMatchesRead(t *testing.T) {
	q := New(64)
	// push the cursor near the end so the next request wraps.
	require.NoError(t, q.Submit(SourceApp, mustPacket(t, protocol.CmdTurnOnLED, make([]byte, 50)), false))
	require.NoError(t, q.Submit(SourceApp, mustPacket(t, protocol.CmdTurnOffLED, nil), false))
	_, ok := q.Read()
	require.True(t, ok)
	_, ok = q.Fetch()
	require.True(t, ok)

	payload := []byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	require.NoError(t, q.Submit(SourceRxHandler, mustPacket(t, protocol.ResFWVersion, payload), true))
	require.Equal(t, 2, q.Pending())
	req, ok := q.Read()
	require.True(t, ok)
	require.Equal(t, protocol.CmdTurnOffLED, req.Packet.Header.Type)

	fetched, ok := q.Fetch()
	require.True(t, ok)
	require.Equal(t, 1, q.Pending())
	read, ok := q.Read()
	require.True(t, ok)
	require.Equal(t, fetched, read)
	require.Equal(t, payload, read.Packet.Payload)
	require.Equal(t, 0, q.Pending())
}

func TestQueueCapacityLaw(t *testing.T) {
	q := New(DefaultCapacity)
	before := q.Free()
	sizes := []int{0, 1, 17, 256, 100, 3}
	for _, n := range sizes {
		require.NoError(t, q.Submit(SourceApp, mustPacket(t, protocol.CmdGetFWVersion, make([]byte, n)), true))
	}
	require.Equal(t, len(sizes), q.Pending())
	for range sizes {
		_, ok := q.Read()
		require.True(t, ok)
	}
	require.Equal(t, 0, q.Pending())
	require.Equal(t, before, q.Free())
}

func TestQueueRejects(t *testing.T) {
	q := New(32)

	oversize := &Request{Source: SourceApp}
	oversize.Packet.Header = protocol.Header{Type: protocol.CmdTurnOnLED, Dir: protocol.DirTargetToHost, PayloadLen: protocol.MaxPayloadSize + 1}
	oversize.Packet.Payload = make([]byte, protocol.MaxPayloadSize+1)
	require.Equal(t, ErrPayloadTooLarge, q.Write(oversize))

	mismatch := &Request{Source: SourceApp}
	mismatch.Packet.Header = protocol.Header{Type: protocol.CmdTurnOnLED, Dir: protocol.DirTargetToHost, PayloadLen: 4}
	mismatch.Packet.Payload = []byte{1}
	require.Equal(t, ErrLengthMismatch, q.Write(mismatch))

	require.Equal(t, ErrInvalidSource, q.Submit(SourceInvalid, mustPacket(t, protocol.CmdTurnOnLED, nil), false))
	require.Equal(t, ErrInvalidSource, q.Submit(Source(0x81), mustPacket(t, protocol.CmdTurnOnLED, nil), false))

	// 5 + 27 fills the queue exactly.
	require.NoError(t, q.Submit(SourceApp, mustPacket(t, protocol.CmdTurnOnLED, make([]byte, 27)), false))
	require.Equal(t, 0, q.Free())
	require.Equal(t, ErrQueueFull, q.Submit(SourceApp, mustPacket(t, protocol.CmdTurnOnLED, nil), false))
	require.Equal(t, 1, q.Pending())
}

func TestQueueDoneCallbackTravelsWithRequest(t *testing.T) {
	q := New(DefaultCapacity)
	var got []int
	for n := 0; n < 3; n++ {
		n := n
		req := NewRequest(SourceApp, mustPacket(t, protocol.CmdTurnOnLED, nil), true)
		if n != 1 {
			req.Done = func(*Request, Result) { got = append(got, n) }
		}
		require.NoError(t, q.Write(req))
	}
	for n := 0; n < 3; n++ {
		req, ok := q.Read()
		require.True(t, ok)
		req.Complete(Result{Outcome: OutcomeAcked})
	}
	require.Equal(t, []int{0, 2}, got)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := New(DefaultCapacity)
	const producers, each = 4, 8
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for n := 0; n < each; n++ {
				payload := []byte{byte(p), byte(n), byte(p), byte(n)}
				require.NoError(t, q.Submit(SourceApp, mustPacket(t, protocol.CmdTurnOnLED, payload), false))
			}
		}(p)
	}
	wg.Wait()
	require.Equal(t, producers*each, q.Pending())
	last := make(map[byte]int)
	for q.Pending() > 0 {
		req, ok := q.Read()
		require.True(t, ok)
		p := req.Packet.Payload
		require.Equal(t, p[0], p[2])
		require.Equal(t, p[1], p[3])
		if prev, ok := last[p[0]]; ok {
			require.Equal(t, prev+1, int(p[1]))
		}
		last[p[0]] = int(p[1])
	}
}
