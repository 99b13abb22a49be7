package port

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// DialWebsocket connects to a websocket endpoint carrying binary frames.
func DialWebsocket(rawURL string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	origin := "http://" + u.Host
	if u.Scheme == "wss" {
		origin = "https://" + u.Host
	}
	conn, err := websocket.Dial(rawURL, "", origin)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	conn.PayloadType = websocket.BinaryFrame
	return conn, nil
}

// AcceptWebsocket serves the URL path and returns the first connection.
// The connection stays usable until closed by either side.
func AcceptWebsocket(ctx context.Context, rawURL string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, err
	}
	connCh := make(chan *wsConn, 1)
	server := &http.Server{}
	mux := http.NewServeMux()
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux.Handle(path, websocket.Handler(func(conn *websocket.Conn) {
		conn.PayloadType = websocket.BinaryFrame
		c := &wsConn{Conn: conn, server: server, closed: make(chan struct{})}
		select {
		case connCh <- c:
			glog.Infof("websocket peer %s connected", conn.Request().RemoteAddr)
			// the handler owns the connection, keep it open until Close.
			<-c.closed
		default:
			glog.Warningf("websocket peer %s rejected: already connected", conn.Request().RemoteAddr)
		}
	}))
	server.Handler = mux
	go server.Serve(ln)

	select {
	case <-ctx.Done():
		server.Close()
		return nil, ctx.Err()
	case c := <-connCh:
		return c, nil
	}
}

type wsConn struct {
	*websocket.Conn
	server *http.Server
	closed chan struct{}
	once   sync.Once
}

func (c *wsConn) Close() (err error) {
	c.once.Do(func() {
		err = c.Conn.Close()
		close(c.closed)
		c.server.Close()
	})
	return
}
