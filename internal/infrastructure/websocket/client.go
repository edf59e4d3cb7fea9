package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campusmarket/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096

	DefaultSendBuffer = 64
)

var (
	ErrClientClosed   = errors.New("websocket: client closed")
	ErrSendBufferFull = errors.New("websocket: send buffer full")
)

// Client is one user's real-time connection. Writes go through a bounded
// buffer drained by WritePump; a client that falls behind is closed.
type Client struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient wraps conn for userID. conn may be nil in tests that never pump.
func NewClient(userID string, conn *websocket.Conn, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Send enqueues payload without blocking.
func (c *Client) Send(payload []byte) error {
	if !c.IsOpen() {
		return ErrClientClosed
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		c.CloseWithReason(websocket.ClosePolicyViolation, "send buffer full")
		return ErrSendBufferFull
	}
}

func (c *Client) Close() {
	c.CloseWithReason(websocket.CloseNormalClosure, "")
}

// CloseWithReason closes the connection once. The send channel is never
// closed so a concurrent Send cannot panic.
func (c *Client) CloseWithReason(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		if c.conn == nil {
			return
		}
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.conn.Close()
	})
}

// ReadPump consumes inbound frames until the peer goes away. Inbound content
// is ignored; the loop exists for close detection and pong handling.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Release(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) && c.IsOpen() {
				logger.Debug("WebSocket: read error for user %s: %v", c.UserID, err)
			}
			return
		}
	}
}

// WritePump drains the send buffer and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("WebSocket: write error for user %s: %v", c.UserID, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
