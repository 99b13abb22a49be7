package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrPayloadTooLarge indicates payload length exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrLengthMismatch indicates header payload length differs from the payload.
	ErrLengthMismatch = errors.New("payload length mismatch")
	// ErrShortFrame indicates the frame is truncated.
	ErrShortFrame = errors.New("short frame")
	// ErrBadPreamble indicates the frame doesn't start with the preamble.
	ErrBadPreamble = errors.New("bad preamble")
	// ErrBadPostamble indicates the frame doesn't end with the postamble.
	ErrBadPostamble = errors.New("bad postamble")
	// ErrBadDirection indicates an unknown direction byte.
	ErrBadDirection = errors.New("bad direction")
	// ErrCrcMismatch indicates checksum validation failed.
	ErrCrcMismatch = errors.New("crc mismatch")
)

// ChecksumError carries the checksums of a rejected frame.
type ChecksumError struct {
	Want uint32
	Got  uint32
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("crc mismatch: want %08x, got %08x", e.Want, e.Got)
}

// Unwrap allows errors.Is(err, ErrCrcMismatch).
func (e *ChecksumError) Unwrap() error {
	return ErrCrcMismatch
}
