package rediscache

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/cache"
)

// Bus implements cache.Bus over Redis Pub/Sub, letting policy-store
// invalidation and gateway-mode changes propagate to every gateway
// instance sharing COUNTER_STORE_URL, not just the process that made the
// change.
type Bus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBus constructs a Redis-backed cache.Bus.
func NewBus(client *redis.Client, logger *slog.Logger) *Bus {
	return &Bus{client: client, logger: logger}
}

// Publish broadcasts payload on channel to every current subscriber across
// every instance.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe returns a channel of payloads published on channel by any
// instance (including this one). The returned channel is closed once ctx
// is canceled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan []byte, 4)
	go func() {
		defer close(out)
		defer sub.Close()
		redisCh := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					b.logger.Warn("cache bus subscriber slow; dropping message", "channel", channel)
				}
			}
		}
	}()

	return out, nil
}

var _ cache.Bus = (*Bus)(nil)
