package fsm

import "errors"

var (
	// ErrInvalidEvent indicates an event which can't be raised from outside.
	ErrInvalidEvent = errors.New("invalid external event")
	// ErrRetriesExhausted indicates a request dropped after all retries timed out.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrReset indicates the in-flight request was abandoned by Init.
	ErrReset = errors.New("transmitter reset")
)
