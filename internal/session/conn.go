package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Frame is one message read from the socket. Binary frames carry output
// data; text frames carry JSON control messages.
type Frame struct {
	Binary bool
	Data   []byte
}

// Conn is the live socket of one session. Writes are serialised so handlers
// and callers on other goroutines can share it.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// WriteJSON sends v as a text frame.
func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// WriteBinary sends p as a binary frame.
func (c *Conn) WriteBinary(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.BinaryMessage, p)
}

func (c *Conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
