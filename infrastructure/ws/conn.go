// Package ws is the websocket transport: one authenticated connection, one
// read loop, one write pump, and a non-blocking sink feeding the room
// dispatchers' events back to the socket.
package ws

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// ErrBackpressure is returned when a connection's send buffer is full. The
// frame is dropped; room dispatchers never wait on a slow reader.
var ErrBackpressure = fmt.Errorf("send buffer full")

// ErrConnClosed is returned for a frame enqueued after the connection shut
// down. Room dispatchers keep the sink until they process the Leave, so a
// late delivery is an expected race, not a fault.
var ErrConnClosed = fmt.Errorf("connection closed")

// wsConn pairs the raw socket with a buffered send channel. Writes go
// through TrySend and are serialized by the write pump, because gorilla
// allows only one concurrent writer. The send channel is never closed:
// shutdown is signalled through done so a dispatcher racing the disconnect
// gets an error instead of a panic.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  *slog.Logger
}

func newWSConn(conn *websocket.Conn, buffer int, log *slog.Logger) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
		log:  log,
	}
}

// TrySend enqueues a frame without blocking.
func (c *wsConn) TrySend(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrBackpressure
	}
}

// Close is safe to call from both pumps and the session cleanup.
func (c *wsConn) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// writePump drains the send channel onto the socket until shutdown or a
// write failure. Frames still buffered at shutdown are dropped.
func (c *wsConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.log.Debug("Write deadline failed", "error", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed", "error", err)
				return
			}
		}
	}
}
