// Package timer provides millisecond countdown events driven by a tick source.
package timer

import "sync"

// Event counts down in ticks and raises when it reaches zero.
// Tick may be called from a different goroutine than the one checking Raised.
type Event struct {
	period    uint32
	remaining uint32
	periodic  bool
	active    bool
	raised    bool
	lock      sync.Mutex
}

// Start arms the event to raise after ticks. A periodic event re-arms itself.
// Starting an armed event restarts it.
func (e *Event) Start(ticks uint32, periodic bool) {
	e.lock.Lock()
	e.period, e.remaining = ticks, ticks
	e.periodic, e.active, e.raised = periodic, true, false
	if ticks == 0 {
		e.raised = true
		e.active = periodic
	}
	e.lock.Unlock()
}

// Stop disarms the event and clears a raised flag.
func (e *Event) Stop() {
	e.lock.Lock()
	e.active, e.raised = false, false
	e.lock.Unlock()
}

// Tick advances the event by one tick.
func (e *Event) Tick() {
	e.lock.Lock()
	defer e.lock.Unlock()
	if !e.active || e.remaining == 0 {
		return
	}
	e.remaining--
	if e.remaining > 0 {
		return
	}
	e.raised = true
	if e.periodic {
		e.remaining = e.period
	} else {
		e.active = false
	}
}

// Raised tells whether the event fired since it was started.
func (e *Event) Raised() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.raised
}

// Active tells whether the event is counting down.
func (e *Event) Active() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.active
}

// Remaining returns ticks left until the event raises.
func (e *Event) Remaining() uint32 {
	e.lock.Lock()
	defer e.lock.Unlock()
	if !e.active {
		return 0
	}
	return e.remaining
}
