package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/splax/teamhub/pkg/logger"
)

const writeWait = 10 * time.Second

// Client represents a websocket client connection.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  *logger.Logger
}

// NewClient constructs a client wrapper.
func NewClient(conn *websocket.Conn, log *logger.Logger) *Client {
	return &Client{conn: conn, log: log}
}

// Send writes a message to the websocket connection.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("websocket send failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close terminates the connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}
