package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// ChannelPrefix prefixes the per-session Redis channel
const ChannelPrefix = "tenantgate:events:"

// RedisForwarder publishes events as JSON on the session's channel
type RedisForwarder struct {
	client *redis.Client
}

// NewRedisForwarder creates a forwarder
func NewRedisForwarder(client *redis.Client) *RedisForwarder {
	return &RedisForwarder{client: client}
}

// Channel returns the channel name for a session
func Channel(sessionID string) string {
	return ChannelPrefix + sessionID
}

// Forward publishes the event
func (f *RedisForwarder) Forward(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := f.client.Publish(ctx, Channel(e.SessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe listens on a session's channel until ctx is done
func (f *RedisForwarder) Subscribe(ctx context.Context, sessionID string, h Handler) error {
	sub := f.client.Subscribe(ctx, Channel(sessionID))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				continue
			}
			h(e)
		}
	}
}
