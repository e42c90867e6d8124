package websocket

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The auction feed is public read-only data; personal topics are
		// bound to the verified token, not the origin.
		return true
	},
}

// IdentityFn resolves the connecting user, typically from a bearer token.
// Returning uuid.Nil admits the connection as an anonymous viewer.
type IdentityFn func(r *http.Request) uuid.UUID

// Handler upgrades HTTP requests into hub clients.
type Handler struct {
	hub      *Hub
	identity IdentityFn
	logger   *zap.Logger
}

func NewHandler(hub *Hub, identity IdentityFn, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, identity: identity, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := uuid.Nil
	if h.identity != nil {
		userID = h.identity(r)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	client := NewClient(conn, h.hub, userID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
