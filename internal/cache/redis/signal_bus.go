package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// EventChannel builds the Pub/Sub channel name for one engine event kind,
// e.g. EventChannel("flash_crash") -> "updown:events:flash_crash".
func EventChannel(kind string) string {
	return "updown:events:" + kind
}

// SignalBus implements domain.SignalBus using Redis Pub/Sub. It fans engine
// events (flash crashes, position lifecycle, market rollovers) out to
// consumers outside the bot process.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// PublishEvent JSON-encodes a payload and publishes it on the event channel
// for the given kind, stamped with the emission time.
func (sb *SignalBus) PublishEvent(ctx context.Context, kind string, payload any) error {
	msg, err := json.Marshal(map[string]any{
		"kind": kind,
		"at":   time.Now().UTC().Format(time.RFC3339Nano),
		"data": payload,
	})
	if err != nil {
		return fmt.Errorf("redis: encode event %s: %w", kind, err)
	}
	return sb.Publish(ctx, EventChannel(kind), msg)
}

// Subscribe creates a Pub/Sub subscription and returns a read-only channel
// of raw payloads. Glob-style channels use PSubscribe. The subscription and
// the returned channel are closed when ctx is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
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
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
