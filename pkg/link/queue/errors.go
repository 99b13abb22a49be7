package queue

import (
	"errors"

	"github.com/robotalks/hostlink/pkg/link/protocol"
)

var (
	// ErrQueueFull indicates there isn't enough free space for the request.
	ErrQueueFull = errors.New("queue full")
	// ErrNoSpace indicates a ring buffer write doesn't fit.
	ErrNoSpace = errors.New("no space in ring buffer")
	// ErrInvalidSource indicates the request source can't be encoded.
	ErrInvalidSource = errors.New("invalid request source")
	// ErrPayloadTooLarge is re-exported from protocol for producers.
	ErrPayloadTooLarge = protocol.ErrPayloadTooLarge
	// ErrLengthMismatch is re-exported from protocol for producers.
	ErrLengthMismatch = protocol.ErrLengthMismatch
)
