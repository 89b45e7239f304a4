package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBuffer = 64
)

type authenticateRequest struct {
	Token string `json:"token"`
}

// Client is one live socket connection. userID is zero until an
// authenticate frame succeeds. closed is guarded by the hub mutex and
// flips exactly once, when the hub unregisters the client.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	userID int64
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   uuid.NewString(),
	}
}

// sendJSON queues an event frame, dropping it if the client's buffer is
// full rather than blocking the caller. The hub read lock serializes the
// send against unregister closing the channel: a frame racing a
// disconnect is dropped, never a panic.
func (c *Client) sendJSON(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.hub.log.Error("marshal outbound event",
			zap.String("event", event), zap.Error(err))
		return
	}
	frame, err := json.Marshal(Message{Type: event, Data: raw})
	if err != nil {
		c.hub.log.Error("marshal outbound frame",
			zap.String("event", event), zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		c.hub.log.Debug("client gone, dropping event",
			zap.String("conn_id", c.id), zap.String("event", event))
		return
	}
	select {
	case c.send <- frame:
	default:
		c.hub.log.Warn("send buffer full, dropping event",
			zap.String("conn_id", c.id), zap.String("event", event))
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.log.Warn("dropping malformed frame", zap.String("conn_id", c.id), zap.Error(err))
			continue
		}

		switch msg.Type {
		case "authenticate":
			var req authenticateRequest
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				// Allow the token as a bare JSON string as well.
				if err := json.Unmarshal(msg.Data, &req.Token); err != nil {
					c.sendJSON("authenticated", authenticatedPayload{Success: false, Error: "malformed token"})
					continue
				}
			}
			c.hub.authenticate(c, req.Token)
		default:
			c.hub.log.Debug("ignoring frame",
				zap.String("conn_id", c.id), zap.String("type", msg.Type))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
