package port

import (
	"context"
	"io"
	"sync"

	"github.com/golang/glog"
)

// Default Writer settings.
const (
	DefaultBacklog   = 4
	DefaultChunkSize = 100
)

// Writer is a non-blocking Sender over an io.Writer.
// Send buffers up to Backlog frames; Run drains them in chunks.
type Writer struct {
	ChunkSize int

	w    io.Writer
	ch   chan []byte
	err  error
	lock sync.Mutex
}

// NewWriter creates a Writer buffering up to backlog frames.
func NewWriter(w io.Writer, backlog int) *Writer {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Writer{
		ChunkSize: DefaultChunkSize,
		w:         w,
		ch:        make(chan []byte, backlog),
	}
}

// Send implements Sender.
func (w *Writer) Send(b []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	frame := make([]byte, len(b))
	copy(frame, b)
	select {
	case w.ch <- frame:
		return nil
	default:
		return ErrBusy
	}
}

// Queued returns the number of frames waiting to be written.
func (w *Writer) Queued() int {
	return len(w.ch)
}

// Err returns the error which stopped the Writer.
func (w *Writer) Err() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.err
}

// Run writes queued frames until ctx is done or a write fails.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.fail(ErrClosed)
			return ctx.Err()
		case frame := <-w.ch:
			if err := w.write(frame); err != nil {
				glog.Errorf("transport write error: %v", err)
				w.fail(err)
				return err
			}
		}
	}
}

func (w *Writer) write(frame []byte) error {
	chunk := w.ChunkSize
	if chunk <= 0 {
		chunk = len(frame)
	}
	for len(frame) > 0 {
		n := chunk
		if n > len(frame) {
			n = len(frame)
		}
		if _, err := w.w.Write(frame[:n]); err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

func (w *Writer) fail(err error) {
	w.lock.Lock()
	if w.err == nil {
		w.err = err
	}
	w.lock.Unlock()
}
