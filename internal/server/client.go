package server

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/duelforge/duel-server-go/internal/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one live connection and its verified identity. The hub is the
// only goroutine that reads hub-owned fields; the pumps only touch the
// websocket and the send channel.
type Client struct {
	id       string
	identity auth.Identity

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	maxMessageBytes int64
	logger          *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, identity auth.Identity, maxMessageBytes int64, sendBuffer int, logger *zap.Logger) *Client {
	return &Client{
		id:              uuid.New().String(),
		identity:        identity,
		hub:             hub,
		conn:            conn,
		send:            make(chan []byte, sendBuffer),
		maxMessageBytes: maxMessageBytes,
		logger:          logger,
	}
}

// readPump forwards inbound envelopes to the hub until the connection
// drops, then unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			// Malformed frame: generic rejection, never a crash.
			c.hub.Inbound(c, Envelope{Type: ""})
			continue
		}
		c.hub.Inbound(c, env)
	}
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with pings. A closed send channel ends the pump.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
