// Package events publishes pipeline events to Redis pub/sub so
// collaborators (notification digests, dashboards) can react without
// the core knowing about them. Publishing is best-effort: a failed
// publish is logged by the caller and never fails the operation.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Channel names.
const (
	ChannelRunCompleted  = "EVENT_RUN_COMPLETED"
	ChannelStatusChanged = "EVENT_STATUS_CHANGED"
)

// Publisher emits one event on a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// Redis publishes events over Redis pub/sub.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an existing Redis client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Publish JSON-encodes payload and publishes it on channel.
func (p *Redis) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
