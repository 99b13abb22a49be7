// Package port provides the byte channels a link runs over.
package port

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrBusy indicates the transport can't take more data right now.
	ErrBusy = errors.New("transport busy")
	// ErrClosed indicates the transport stopped.
	ErrClosed = errors.New("transport closed")
)

// Sender hands bytes to a transport without blocking.
// It returns nil when the bytes are accepted, ErrBusy when the transport
// can't take them now, or another error for a permanent fault.
type Sender interface {
	Send([]byte) error
}

// SendFunc is func type of Sender.
type SendFunc func([]byte) error

// Send implements Sender.
func (f SendFunc) Send(b []byte) error {
	return f(b)
}

// Default serial settings.
const (
	DefaultBaud = 115200
)

// Endpoint describes where a byte channel is.
//
// Supported forms:
//
//	/dev/ttyUSB0
//	serial:///dev/ttyUSB0?baud=115200&read_timeout=100ms
//	tcp://host:port
//	ws://host:port/path
type Endpoint struct {
	Scheme      string
	Address     string
	Baud        int
	ReadTimeout time.Duration
}

// ParseEndpoint parses an endpoint URL.
func ParseEndpoint(raw string) (*Endpoint, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty endpoint")
	}
	if strings.HasPrefix(raw, "/") || !strings.Contains(raw, "://") {
		return &Endpoint{Scheme: "serial", Address: raw, Baud: DefaultBaud}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	ep := &Endpoint{Scheme: u.Scheme}
	switch u.Scheme {
	case "serial":
		ep.Address, ep.Baud = u.Path, DefaultBaud
		if ep.Address == "" {
			ep.Address = u.Opaque
		}
		q := u.Query()
		if val := q.Get("baud"); val != "" {
			if ep.Baud, err = strconv.Atoi(val); err != nil {
				return nil, fmt.Errorf("invalid baud %q: %w", val, err)
			}
		}
		if val := q.Get("read_timeout"); val != "" {
			if ep.ReadTimeout, err = time.ParseDuration(val); err != nil {
				return nil, fmt.Errorf("invalid read_timeout %q: %w", val, err)
			}
		}
	case "tcp":
		ep.Address = u.Host
	case "ws", "wss":
		ep.Address = raw
	default:
		return nil, fmt.Errorf("unknown endpoint scheme %q", u.Scheme)
	}
	if ep.Address == "" {
		return nil, fmt.Errorf("endpoint %q has no address", raw)
	}
	return ep, nil
}

// String implements Stringer.
func (e *Endpoint) String() string {
	switch e.Scheme {
	case "serial":
		return fmt.Sprintf("serial://%s?baud=%d", e.Address, e.Baud)
	case "tcp":
		return "tcp://" + e.Address
	}
	return e.Address
}

// Open connects to the endpoint.
func (e *Endpoint) Open() (io.ReadWriteCloser, error) {
	switch e.Scheme {
	case "serial":
		return OpenSerial(e.Address, e.Baud, e.ReadTimeout)
	case "tcp":
		return net.Dial("tcp", e.Address)
	case "ws", "wss":
		return DialWebsocket(e.Address)
	}
	return nil, fmt.Errorf("can't open %q", e.Scheme)
}

// Accept waits for a peer to connect to the endpoint.
// Serial ports are simply opened.
func (e *Endpoint) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	switch e.Scheme {
	case "tcp":
		return acceptTCP(ctx, e.Address)
	case "ws", "wss":
		return AcceptWebsocket(ctx, e.Address)
	}
	return e.Open()
}

// Open parses and opens an endpoint.
func Open(raw string) (io.ReadWriteCloser, error) {
	ep, err := ParseEndpoint(raw)
	if err != nil {
		return nil, err
	}
	return ep.Open()
}

// Accept parses an endpoint and waits for a peer.
func Accept(ctx context.Context, raw string) (io.ReadWriteCloser, error) {
	ep, err := ParseEndpoint(raw)
	if err != nil {
		return nil, err
	}
	return ep.Accept(ctx)
}

func acceptTCP(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		ln.Close()
		if res := <-ch; res.conn != nil {
			res.conn.Close()
		}
		return nil, ctx.Err()
	case res := <-ch:
		return res.conn, res.err
	}
}
