package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/smri29/BidPulse/internal/infrastructure/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 512
	sendQueueSize  = 32
)

// Client is one websocket connection. userID is uuid.Nil for anonymous
// viewers, who may watch auction rooms but get no personal topic.
type Client struct {
	ID     uuid.UUID
	conn   *websocket.Conn
	hub    *Hub
	send   chan events.Event
	topics map[string]struct{}
	userID uuid.UUID
}

// clientMessage is what clients send upstream: room management only.
type clientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// outboundFrame is the envelope written to clients.
type outboundFrame struct {
	Type      string    `json:"type"`
	Topic     string    `json:"topic,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewClient(conn *websocket.Conn, hub *Hub, userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.New(),
		conn:   conn,
		hub:    hub,
		send:   make(chan events.Event, sendQueueSize),
		topics: make(map[string]struct{}),
		userID: userID,
	}
}

// ReadPump consumes subscribe/unsubscribe messages until the connection
// drops, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error",
					zap.String("client_id", c.ID.String()),
					zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "subscribe":
			c.hub.Subscribe(c, msg.Topic)
		case "unsubscribe":
			c.hub.Unsubscribe(c, msg.Topic)
		}
	}
}

// WritePump drains the send queue onto the wire in order.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for e := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		frame := outboundFrame{
			Type:      e.Type,
			Topic:     e.Topic,
			Data:      e.Data,
			Timestamp: e.Timestamp,
		}
		if err := c.conn.WriteJSON(frame); err != nil {
			return
		}
	}

	// Hub closed the queue; say goodbye politely.
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
