// network/connection.go
package network

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a single frame to the peer.
	writeWait = 10 * time.Second

	// Frames queued per connection before Send reports ErrSendBufferFull.
	egressSize = 64
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Connection is the duplex text channel a session talks through.
type Connection interface {
	Send(data []byte) error
	ReadMessage() ([]byte, error)
	Ping() error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
}

// WSConnection adapts a gorilla websocket. Writes go through a bounded egress
// queue drained by a single write pump, so Send never blocks the caller.
type WSConnection struct {
	conn      *websocket.Conn
	egress    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	heartbeat time.Duration
}

func NewWSConnection(conn *websocket.Conn, maxMessageSize int64) *WSConnection {
	c := &WSConnection{
		conn:   conn,
		egress: make(chan []byte, egressSize),
		done:   make(chan struct{}),
	}
	if maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	go c.writePump()
	return c
}

// Send queues one text frame.
func (c *WSConnection) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.egress <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// ReadMessage blocks for the next data frame.
func (c *WSConnection) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Ping writes a control frame; safe to call concurrently with the write pump.
func (c *WSConnection) Ping() error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// SetHeartbeat arms the read deadline; every pong pushes it forward.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
	})
}

// Close stops the write pump, which flushes queued frames and closes the socket.
func (c *WSConnection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *WSConnection) writePump() {
	defer c.conn.Close()

	for {
		select {
		case data := <-c.egress:
			if err := c.write(data); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *WSConnection) flush() {
	for {
		select {
		case data := <-c.egress:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *WSConnection) write(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
