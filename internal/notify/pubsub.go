package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type (
	// Notification is the payload published on a user channel.
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Message struct {
		To   string `json:"to"`
		Body string `json:"body"`
	}
)

const eventMessage = "message"

// PubsubSender publishes messages on the Redis channel "{prefix}:user:{to}",
// for a gateway process that owns the actual delivery.
type PubsubSender struct {
	redis  Redis
	prefix string
}

func NewPubsubSender(r Redis, prefix string) *PubsubSender {
	if prefix == "" {
		prefix = "quizbot"
	}
	return &PubsubSender{redis: r, prefix: prefix}
}

func (s *PubsubSender) Send(ctx context.Context, to, body string) error {
	b, err := json.Marshal(Notification{
		Event: eventMessage,
		Data:  Message{To: to, Body: body},
	})
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %w", eventMessage, err)
	}

	if err := s.redis.Publish(ctx, s.Channel(to), b).Err(); err != nil {
		return fmt.Errorf("pubsub: publish to %s: %w", to, err)
	}
	return nil
}

// Channel returns the channel messages for addr are published on.
func (s *PubsubSender) Channel(addr string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, addr)
}
