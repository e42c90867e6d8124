package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event names delivered to connected clients. The strings are part of the
// client contract and must not change.
const (
	TypeBidUpdate    = "bid_update"
	TypeAuctionEnded = "auction_ended"
	TypeNotification = "notification"
)

// Event is one state change fanned out to subscribers of its topic.
// Delivery is at-most-once and best-effort: disconnected clients re-fetch
// current state from the record store instead of replaying events.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Topic     string    `json:"topic"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds an event with a fresh id and timestamp.
func New(eventType, topic string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// AuctionTopic is the per-auction channel clients join from the detail view.
func AuctionTopic(auctionID uuid.UUID) string {
	return "auction." + auctionID.String()
}

// UserTopic carries personal notifications (outbid, you won, item sold).
func UserTopic(userID uuid.UUID) string {
	return "user." + userID.String()
}

// Publisher is the capability handed to the bid acceptance service, the
// closer and the payment transitioner. It is always injected through
// constructors, never reached through a process-wide singleton.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber feeds a fan-out consumer (the websocket hub) with every event
// published on the bus, across all topics.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}
