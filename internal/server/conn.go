package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the room.Outbox for one WebSocket.
//
// Frames are buffered in a fixed-size channel drained by writePump. A full
// buffer makes Deliver fail, and the room drops the connection as a slow
// consumer. Close is idempotent; frames already buffered are still written
// before the close frame.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	pingInterval time.Duration

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newWSConn(ws *websocket.Conn, outbox int, writeTimeout, pingInterval time.Duration) *wsConn {
	return &wsConn{
		ws:           ws,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		send:         make(chan []byte, outbox),
		done:         make(chan struct{}),
	}
}

// Deliver queues frame without blocking.
func (c *wsConn) Deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the connection once buffered frames are written.
func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Done is closed once Close has been called.
func (c *wsConn) Done() <-chan struct{} {
	return c.done
}

// writePump owns every write to the socket. It returns after Close or a
// write failure and closes the socket, which unblocks the reader.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes frames buffered before Close.
func (c *wsConn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

// readPump feeds inbound data frames to receive until the socket fails or
// receive reports the consumer is gone. Pongs extend the read deadline.
func (c *wsConn) readPump(readLimit int64, receive func([]byte) bool) {
	wait := 2 * c.pingInterval
	c.ws.SetReadLimit(readLimit)
	c.ws.SetReadDeadline(time.Now().Add(wait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(wait))
		if !receive(frame) {
			return
		}
	}
}
