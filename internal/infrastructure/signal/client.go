package signal

import (
	"sync"
	"time"

	"murmur/internal/core/domain"

	"github.com/gorilla/websocket"
)

// Client is one websocket session. Frames are queued on send and written by
// a single writer goroutine, so a slow socket never blocks the sender.
type Client struct {
	id   domain.ConnectionID
	conn *websocket.Conn
	send chan []byte

	quit      chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	pingInterval time.Duration
	writeTimeout time.Duration
}

func newClient(id domain.ConnectionID, conn *websocket.Conn, queueSize int, pingInterval, writeTimeout time.Duration) *Client {
	return &Client{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, queueSize),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
	}
}

func (c *Client) ID() domain.ConnectionID {
	return c.id
}

// enqueue never blocks. It reports false when the queue is full or the
// client is closing.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the writer after it flushes whatever is already queued.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
	})
}

// Done is closed once the writer has exited and the socket is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
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

		case <-c.quit:
			c.drain()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) drain() {
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

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}
