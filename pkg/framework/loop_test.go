package framework

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopPriorityOrder(t *testing.T) {
	var order []string
	ctl := func(name string) Controller {
		return ControlFunc(func(ctx ControlContext) error {
			order = append(order, name)
			return nil
		})
	}
	l := NewLoop()
	l.AddController(PrLvReport, ctl("report"))
	l.AddController(PrLvTransmit, ctl("transmit"))
	l.AddController(PrLvTop, ControlFunc(func(ctx ControlContext) error {
		order = append(order, "top")
		ctx.PostRun(ctl("post"))
		ctx.PreRunAt(PrLvReport, ctl("pre-report"))
		return nil
	}))
	l.RunIteration(context.Background())
	require.Equal(t, []string{"top", "post", "transmit", "pre-report", "report"}, order)

	order = nil
	l.RunIteration(context.Background())
	require.Equal(t, []string{"top", "post", "transmit", "pre-report", "report"}, order)
}

func TestLoopIterationContext(t *testing.T) {
	l := NewLoop()
	var seqs []uint64
	l.AddController(PrLvNormal, ControlFunc(func(ctx ControlContext) error {
		require.Equal(t, PrLvNormal, ctx.PriorityLevel())
		require.Equal(t, ctx, CtlCtxFrom(ctx.Context()))
		seqs = append(seqs, ctx.Iteration())
		return errors.New("logged only")
	}))
	l.RunIteration(context.Background())
	l.RunIteration(context.Background())
	require.Equal(t, []uint64{1, 2}, seqs)
}

func TestLoopTickers(t *testing.T) {
	var ticks int32
	l := NewLoop()
	l.TickInterval = time.Millisecond
	l.AddTicker(TickFunc(func() { atomic.AddInt32(&ticks, 1) }))
	l.Tick()
	require.Equal(t, int32(1), atomic.LoadInt32(&ticks))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Equal(t, context.DeadlineExceeded, l.Run(ctx))
	require.True(t, atomic.LoadInt32(&ticks) > 1)
}

func TestLoopStopsOnRunnableFailure(t *testing.T) {
	failure := errors.New("port closed")
	stopped := make(chan struct{})
	l := NewLoop()
	l.AddRunnable(
		NamedRun("reader", RunFunc(func(ctx context.Context) error {
			return failure
		})),
		RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		}),
	)
	err := l.Run(context.Background())
	require.True(t, errors.Is(err, failure))
	require.Contains(t, err.Error(), "reader")
	<-stopped
}

func TestLoopCanceled(t *testing.T) {
	var iterations int32
	l := NewLoop()
	l.AddController(PrLvNormal, ControlFunc(func(ControlContext) error {
		atomic.AddInt32(&iterations, 1)
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	require.Equal(t, context.Canceled, l.Run(ctx))
	require.True(t, atomic.LoadInt32(&iterations) > 0)
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	first, second := errors.New("first"), errors.New("second")
	errs.Add(first)
	require.Equal(t, "first", errs.Aggregate().Error())
	errs.Add(second)
	err := errs.Aggregate()
	require.Equal(t, "Multiple errors:\nfirst\nsecond", err.Error())
	require.True(t, errors.Is(err, second))
}

func TestRunWithContextCloser(t *testing.T) {
	closer := &countCloser{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RunWithContextCloser(ctx, closer, func() error {
		for atomic.LoadInt32(&closer.n) == 0 {
			time.Sleep(time.Millisecond)
		}
		return nil
	})
	require.Equal(t, context.Canceled, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&closer.n))
}

type countCloser struct {
	n int32
}

func (c *countCloser) Close() error {
	atomic.AddInt32(&c.n, 1)
	return nil
}
