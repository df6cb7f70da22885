package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"teamcollab/pkg/types"
)

// Connection wraps one live duplex transport session. Writes are serialized
// through a single writer goroutine; the userID is fixed at connect time,
// after the handshake credential has been verified.
type Connection struct {
	id           string
	userID       string
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection wraps an upgraded websocket connection and starts its writer
// goroutine.
func NewConnection(id, userID string, conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           id,
		userID:       userID,
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	// The channel is never closed; cancelling the context is the only exit
	// signal, so a sender can never hit a closed channel.
	defer c.cancel()

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

// WriteEvent queues a server event frame for delivery. Delivery is
// fire-and-forget, at most once.
func (c *Connection) WriteEvent(event string, data any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	payload, err := json.Marshal(types.ServerEvent{Event: event, Data: data})
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- payload:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears down the connection. Safe to call more than once.
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

// ID returns the opaque connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// UserID returns the authenticated user this connection belongs to.
func (c *Connection) UserID() string {
	return c.userID
}
