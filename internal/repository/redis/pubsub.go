package redis

import (
	"context"
	"encoding/json"
)

// StatusChannel is the Redis pub/sub channel carrying channel-status
// updates across API replicas, so the WebSocket hub on every replica can
// broadcast the same event regardless of which replica's worker produced it.
const StatusChannel = "notification:status"

// PublishStatusUpdate publishes a status update event for cross-replica
// WebSocket fan-out.
func (c *Client) PublishStatusUpdate(ctx context.Context, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, StatusChannel, raw).Err()
}

// SubscribeStatusUpdates subscribes to the status-update channel, invoking
// handler for every decoded message until ctx is cancelled.
func (c *Client) SubscribeStatusUpdates(ctx context.Context, handler func([]byte)) error {
	sub := c.client.Subscribe(ctx, StatusChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler([]byte(msg.Payload))
		}
	}
}
