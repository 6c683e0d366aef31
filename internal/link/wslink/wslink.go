// Package wslink carries the peer link over a websocket. The host accepts
// upgrades on its HTTP server; the companion dials the host.
package wslink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/micro-nova/flick-go/internal/link"
)

// Path is the HTTP path the host serves the link on.
const Path = "/link"

const (
	writeWait    = 5 * time.Second
	maxFrameSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn adapts a websocket connection to link.FrameConn. Each frame is one
// text message.
type Conn struct {
	ws *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps ws.
func NewConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(maxFrameSize)
	return &Conn{ws: ws}
}

// ReadFrame returns the next text or binary message.
func (c *Conn) ReadFrame() ([]byte, error) {
	for {
		mt, b, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return b, nil
		}
	}
}

// WriteFrame sends b as a text message.
func (c *Conn) WriteFrame(b []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Close sends a close message and closes the socket once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// Handler upgrades requests and offers the connection to acc.
func Handler(acc *link.Acceptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("wslink: upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		slog.Info("wslink: peer connected", "remote", r.RemoteAddr)
		acc.Offer(NewConn(ws))
	}
}

// Dialer returns a link.Dialer connecting to url, for example
// "ws://flick-host.local:8080/link". resolve, if non-nil, is called on every
// dial to obtain the URL (used with zeroconf discovery).
func Dialer(url string, resolve func(ctx context.Context) (string, error)) link.Dialer {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return func(ctx context.Context) (link.FrameConn, error) {
		target := url
		if resolve != nil {
			u, err := resolve(ctx)
			if err != nil {
				return nil, err
			}
			target = u
		}
		ws, _, err := d.DialContext(ctx, target, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", target, err)
		}
		slog.Info("wslink: connected", "url", target)
		return NewConn(ws), nil
	}
}
