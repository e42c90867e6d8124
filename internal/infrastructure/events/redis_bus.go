package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "bidpulse:events:"

// RedisBus publishes events over redis pub/sub so broadcasts reach clients
// connected to any server instance, not just the one that accepted the bid.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

// Publish sends one event to its topic's channel. Events for the same
// auction are published from a single spot after the store commit, so
// per-channel FIFO delivery preserves their order.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, channelPrefix+event.Topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe listens on every event channel and decodes messages into Events.
// The channel closes when ctx is canceled.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")

	// Force the subscription to be established before we return.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event, 256)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("dropping undecodable event",
						zap.String("channel", msg.Channel),
						zap.Error(err))
					continue
				}
				select {
				case out <- event:
				default:
					// Consumer is behind; best-effort delivery drops rather
					// than blocking the bus.
					b.logger.Warn("event subscriber backlogged, dropping event",
						zap.String("type", event.Type),
						zap.String("topic", event.Topic))
				}
			}
		}
	}()

	return out, nil
}
