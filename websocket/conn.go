package websocket

import (
	"sync"
	"time"

	"github.com/fwojciec/relay"
	"github.com/gorilla/websocket"
)

// conn adapts a gorilla connection to relay.Conn. Writes are serialized;
// gorilla allows one concurrent writer.
type conn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

var _ relay.Conn = (*conn)(nil)

func (c *conn) ID() string { return c.id }

func (c *conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, c.deadline())
}

// close sends a going-away close frame and closes the socket, which ends
// the read loop.
func (c *conn) close() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, c.deadline())
	c.ws.Close()
}

func (c *conn) deadline() time.Time {
	timeout := c.writeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return time.Now().Add(timeout)
}
