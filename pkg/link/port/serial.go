package port

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// OpenSerial opens a serial port, 8N1.
func OpenSerial(device string, baud int, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: readTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	return p, nil
}
