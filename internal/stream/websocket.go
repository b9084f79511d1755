package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	_ Conn   = (*websocketConn)(nil)
	_ Dialer = (*websocketDialer)(nil)
)

// websocketConn adapts a gorilla websocket connection to the Conn
// interface. Gorilla allows only one concurrent writer, so writes are
// serialized here.
type websocketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

// ReadMessage implements Conn.
func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	return data, nil
}

// WriteMessage implements Conn.
func (c *websocketConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}

	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close implements Conn. A close frame is sent best-effort before the
// underlying connection is torn down.
func (c *websocketConn) Close() error {
	c.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, message, deadline)
	c.writeMu.Unlock()

	return c.conn.Close()
}

// websocketDialer dials gorilla websocket connections.
type websocketDialer struct {
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
}

// NewWebsocketDialer creates the production Dialer used by the Manager.
func NewWebsocketDialer(handshakeTimeout, writeTimeout time.Duration) Dialer {
	return &websocketDialer{
		handshakeTimeout: handshakeTimeout,
		writeTimeout:     writeTimeout,
	}
}

// Dial implements Dialer.
func (d *websocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := websocket.Dialer{ //nolint:exhaustruct
		HandshakeTimeout: d.handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}

		return nil, err
	}

	return &websocketConn{
		conn:         conn,
		writeTimeout: d.writeTimeout,
		writeMu:      sync.Mutex{},
	}, nil
}
