package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Controller is stepped once per control iteration.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc defines the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(ctx ControlContext) error {
	return f(ctx)
}

// Ticker is advanced on every timer tick, independent of control iterations.
// Tick is called from the timer goroutine.
type Ticker interface {
	Tick()
}

// TickFunc is the func form of Ticker.
type TickFunc func()

// Tick implements Ticker.
func (f TickFunc) Tick() {
	f()
}

// TimeSource provides the time for controlling logic.
type TimeSource interface {
	Time() time.Time
}

// ControlContext provides the context of current control
// iteration.
type ControlContext interface {
	TimeSource
	// Context retrieves context.Context.
	Context() context.Context
	// Iteration is the sequence number of current iteration.
	Iteration() uint64
	// PriorityLevel gets the current priority level.
	PriorityLevel() int
	// PostRun injects post-run one-shot hooks at current
	// priority level. If called in post-run hooks, new hooks
	// are installed for next iteration.
	PostRun(hooks ...Controller)

	LoopControl
}

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 8

// Predefine priority levels
const (
	PrLvTop    int = 0
	PrLvHigh   int = 2
	PrLvNormal int = 4
	PrLvLow    int = 6
	PrLvIdle   int = PriorityLevels - 1

	// PrLvTransmit is the priority level of transmitters.
	PrLvTransmit = PrLvNormal
	// PrLvReport is the priority level for status reporting.
	PrLvReport = PrLvLow
)

// LoopControl exposes access to the controlling loop.
type LoopControl interface {
	// PreRunAt injects one-shot pre-run controller hooks at
	// specified priority level.
	PreRunAt(priorityLevel int, controllers ...Controller)
	// PostRunAt injects one-shot post-run controller hooks at
	// specified priority level.
	PostRunAt(priorityLevel int, controllers ...Controller)
	// TriggerNext schedules the next iteration to be executed
	// immediately after the current iteration.
	TriggerNext()
}
