package server

import (
	"errors"
	"sync"
	"time"

	"stock-exchange/src/helpers"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 // commands are tiny
)

var (
	errClientClosed = errors.New("connection closed")
	errSendBuffer   = errors.New("send buffer full")
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client is one websocket subscriber. Messages are queued on send and written by
// writePump, so Send never waits on the network.
type Client struct {
	id      string
	gateway *Gateway
	conn    *websocket.Conn
	send    chan interface{}

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, g *Gateway, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		id:      id,
		gateway: g,
		conn:    conn,
		send:    make(chan interface{}, buffer),
		done:    make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

func (c *Client) ID() string {
	return c.id
}

// -----------------------------------------------------------------------------

// Send queues message. It fails with a TransportError when the client is closed
// or its buffer is full.
func (c *Client) Send(message interface{}) error {
	select {
	case <-c.done:
		return helpers.NewTransportError(c.id, errClientClosed)
	default:
	}

	select {
	case c.send <- message:
		return nil
	default:
		return helpers.NewTransportError(c.id, errSendBuffer)
	}
}

// -----------------------------------------------------------------------------

// Close stops both pumps. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		c.gateway.disconnect(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gateway.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
		// Handle the message (subscribe/unsubscribe commands)
		if !c.gateway.HandleClientMessage(c, message) {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.gateway.Logger.Info("Write error for %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
