package websocket

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/smri29/BidPulse/internal/infrastructure/events"
)

// Hub fans bus events out to connected clients by topic. A client joins the
// room for each auction page it has open; personal topics are attached at
// registration from the authenticated identity and cannot be subscribed to
// by hand. Delivery is at-most-once: a client that cannot keep up is
// disconnected and re-syncs from the record store on reconnect.
type Hub struct {
	source     events.Subscriber
	logger     *zap.Logger
	clients    map[uuid.UUID]*Client
	rooms      map[string]map[uuid.UUID]*Client
	mu         sync.RWMutex
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once
}

func NewHub(source events.Subscriber, logger *zap.Logger) *Hub {
	return &Hub{
		source:     source,
		logger:     logger,
		clients:    make(map[uuid.UUID]*Client),
		rooms:      make(map[string]map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run consumes the event bus and dispatches until the context is cancelled.
// The single goroutine consuming the bus preserves per-topic publish order
// all the way into each client's send queue.
func (h *Hub) Run(ctx context.Context) error {
	incoming, err := h.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case <-h.done:
			h.shutdown()
			return nil
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case e, ok := <-incoming:
			if !ok {
				h.shutdown()
				return nil
			}
			h.dispatch(e)
		case <-ticker.C:
			h.pingClients()
		}
	}
}

// Stop shuts the hub down outside of context cancellation.
func (h *Hub) Stop() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Register hands a freshly upgraded connection to the hub loop.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.conn.Close()
	}
}

// Unregister removes a client; safe to call multiple times.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount reports how many connections are registered.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.ID] = c
	if c.userID != uuid.Nil {
		h.joinLocked(c, events.UserTopic(c.userID))
	}

	h.logger.Debug("websocket client registered",
		zap.String("client_id", c.ID.String()),
		zap.String("user_id", c.userID.String()))
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	for topic := range c.topics {
		h.leaveLocked(c, topic)
	}
	close(c.send)

	h.logger.Debug("websocket client unregistered",
		zap.String("client_id", c.ID.String()))
}

// auctionRoom maps a client-supplied topic to the internal room name.
// Clients may send either a bare auction id or the prefixed form; personal
// topics never resolve here, they are attached from the verified identity
// only.
func auctionRoom(topic string) (string, bool) {
	id := strings.TrimPrefix(topic, "auction.")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return "auction." + id, true
}

// Subscribe joins the client to an auction room.
func (h *Hub) Subscribe(c *Client, topic string) bool {
	room, ok := auctionRoom(topic)
	if !ok {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return false
	}
	h.joinLocked(c, room)
	return true
}

// Unsubscribe removes the client from an auction room.
func (h *Hub) Unsubscribe(c *Client, topic string) {
	room, ok := auctionRoom(topic)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) joinLocked(c *Client, topic string) {
	room, ok := h.rooms[topic]
	if !ok {
		room = make(map[uuid.UUID]*Client)
		h.rooms[topic] = room
	}
	room[c.ID] = c
	c.topics[topic] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, topic string) {
	delete(c.topics, topic)
	if room, ok := h.rooms[topic]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, topic)
		}
	}
}

func (h *Hub) dispatch(e events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[e.Topic]
	if !ok {
		return
	}
	for _, client := range room {
		select {
		case client.send <- e:
		default:
			// A full queue means the client stopped reading; cut it loose
			// rather than block everyone else in the room.
			h.logger.Warn("websocket client lagging, disconnecting",
				zap.String("client_id", client.ID.String()),
				zap.String("topic", e.Topic))
			go h.Unregister(client)
		}
	}
}

func (h *Hub) pingClients() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
			go h.Unregister(client)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.rooms = make(map[string]map[uuid.UUID]*Client)
}
