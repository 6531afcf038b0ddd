// Package cache defines the shared pub/sub abstraction components C and F
// use to propagate change events (policy-store invalidation, gateway-mode
// switches) across gateway instances. A single-instance deployment uses the
// in-process Bus here; a multi-instance deployment swaps in
// internal/adapter/outbound/rediscache's Redis-backed implementation of the
// same interface -- exactly one propagation mechanism, selected by
// COUNTER_STORE_URL, not two parallel ones.
package cache

import (
	"context"
	"sync"
)

// Bus publishes and subscribes to named channels carrying opaque payloads.
// Implementations must not block Publish on a slow subscriber: a full
// subscriber channel drops the message rather than stalling the publisher,
// matching the fire-and-forget semantics spec.md's change-notification
// contract requires (a missed event is recovered by the next periodic
// refresh, not retried at the bus level).
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of payloads published to channel. The
	// returned channel is closed when ctx is canceled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LocalBus is an in-process Bus, grounded on the same subscriber-slice +
// mutex pattern memory.PolicyStore already uses for its own Subscribe:
// generalized here into a standalone, channel-named component so it can
// also carry breaker.Gate mode-change broadcasts without PolicyStore and
// Gate each reimplementing their own fan-out.
type LocalBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

// NewLocalBus constructs an empty in-process Bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string][]chan []byte)}
}

// Publish fans payload out to every current subscriber of channel,
// dropping it for any subscriber whose buffer is full.
func (b *LocalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber channel for channel, removed when
// ctx is canceled.
func (b *LocalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 4)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}
