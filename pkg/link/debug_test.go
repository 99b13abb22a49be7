package link

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/hostlink/pkg/link/protocol"
	"github.com/robotalks/hostlink/pkg/link/queue"
)

func TestDebugPrinter(t *testing.T) {
	q := queue.New(queue.DefaultCapacity)
	p := NewDebugPrinter(q, protocol.DirTargetToHost)
	require.NoError(t, p.Printf("booting %d", 7))
	require.NoError(t, p.Print(strings.Repeat("x", 300)))

	req, ok := q.Read()
	require.True(t, ok)
	require.Equal(t, queue.SourceDebug, req.Source)
	require.False(t, req.AckRequired)
	require.Equal(t, protocol.EvtPrintDbgMsg, req.Packet.Header.Type)
	require.Equal(t, protocol.DirTargetToHost, req.Packet.Header.Dir)
	require.Equal(t, "booting 7", string(req.Packet.Payload))

	req, ok = q.Read()
	require.True(t, ok)
	require.Len(t, req.Packet.Payload, protocol.MaxPayloadSize)
}

func TestDebugPrinterWriteSplits(t *testing.T) {
	q := queue.New(queue.DefaultCapacity)
	p := NewDebugPrinter(q, protocol.DirHostToTarget)
	n, err := fmt.Fprint(p, strings.Repeat("y", 600))
	require.NoError(t, err)
	require.Equal(t, 600, n)
	require.Equal(t, 3, q.Pending())
	var sizes []int
	for req, ok := q.Read(); ok; req, ok = q.Read() {
		sizes = append(sizes, len(req.Packet.Payload))
	}
	require.Equal(t, []int{256, 256, 88}, sizes)
}

func TestDebugPrinterQueueFull(t *testing.T) {
	q := queue.New(32)
	p := NewDebugPrinter(q, protocol.DirTargetToHost)
	require.NoError(t, p.Print(strings.Repeat("z", 20)))
	require.Equal(t, queue.ErrQueueFull, p.Print("more"))
	n, err := p.Write([]byte("again"))
	require.Equal(t, 0, n)
	require.Equal(t, queue.ErrQueueFull, err)
}
