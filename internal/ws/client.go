package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// FrameConn is the slice of the websocket connection the relay core needs.
// *websocket.Conn satisfies it; tests plug in an in-memory recorder.
type FrameConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one live signaling connection. Identity (username, room) lives in
// the Registry, not here; the Client only owns the transport handle.
type Client struct {
	id     string
	conn   FrameConn
	mu     sync.Mutex
	closed atomic.Bool
}

func NewClient(id string, conn FrameConn) *Client {
	return &Client{id: id, conn: conn}
}

// ID is the server-assigned connection ID, used for logging only.
func (c *Client) ID() string { return c.id }

// ready reports whether the transport is still in a sendable state.
func (c *Client) ready() bool { return !c.closed.Load() }

// send delivers one serialized frame, best-effort. A closed or failing
// transport degrades to a no-op; the error is returned for logging but a
// failed recipient never aborts delivery to others.
func (c *Client) send(frame []byte) error {
	if !c.ready() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.closed.Store(true)
		return err
	}
	return nil
}

// close marks the client unsendable and closes the transport. Idempotent.
func (c *Client) close() {
	if c.closed.Swap(true) {
		return
	}
	_ = c.conn.Close()
}
