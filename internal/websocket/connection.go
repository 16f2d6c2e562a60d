package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection wraps a WebSocket with a single-writer channel so concurrent
// broadcasts never interleave writes. The transport preserves send order
// per connection, which history-then-live-message delivery relies on.
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once

	mu     sync.RWMutex
	name   string
	room   string
	joined bool
}

// NewConnection wraps an upgraded WebSocket and starts its writer
// goroutine.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()
	return c
}

// ID returns the transport-assigned connection handle.
func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for delivery. A full buffer or closed connection
// drops the frame with an error; callers treat delivery as best-effort.
func (c *Connection) WriteJSON(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrWriteBufferFull
	}
}

// Close tears the connection down. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// SetIdentity records the session identity after a successful join.
func (c *Connection) SetIdentity(name, room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	c.room = room
	c.joined = true
}

// ClearIdentity returns the connection to the unaffiliated state.
func (c *Connection) ClearIdentity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = ""
	c.room = ""
	c.joined = false
}

// Identity returns the connection's session identity, if joined.
func (c *Connection) Identity() (name, room string, joined bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name, c.room, c.joined
}
