package rediscache

import (
	"context"
	"log/slog"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/cache"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/breaker"
)

// modeChannel is the cache.Bus channel gateway-mode changes are published
// on, so every instance sharing a counter store converges on the same mode
// shortly after any one of them calls PUT /api/v1/gateway/mode.
const modeChannel = "sentinelgate:mode"

// ModePublisher implements breaker.Publisher over a cache.Bus, decoupling
// the gateway mode's propagation mechanism from whether the bus happens to
// be backed by Redis or stays purely in-process.
type ModePublisher struct {
	bus    cache.Bus
	logger *slog.Logger
}

// NewModePublisher constructs a ModePublisher over bus.
func NewModePublisher(bus cache.Bus, logger *slog.Logger) *ModePublisher {
	return &ModePublisher{bus: bus, logger: logger}
}

// PublishMode broadcasts m on the shared mode channel.
func (p *ModePublisher) PublishMode(ctx context.Context, m breaker.Mode) error {
	return p.bus.Publish(ctx, modeChannel, []byte(m.String()))
}

// RunModeSubscriber listens for mode broadcasts from peer instances and
// applies them locally via gate.ApplyRemote (never republishing, so peers
// don't relay the same change back and forth). Intended to run as a
// background goroutine for the lifetime of the process.
func RunModeSubscriber(ctx context.Context, bus cache.Bus, gate *breaker.Gate, logger *slog.Logger) {
	ch, err := bus.Subscribe(ctx, modeChannel)
	if err != nil {
		logger.Error("failed to subscribe to mode channel", "error", err)
		return
	}
	for payload := range ch {
		mode, err := breaker.ParseMode(string(payload))
		if err != nil {
			logger.Warn("received malformed mode broadcast", "payload", string(payload), "error", err)
			continue
		}
		gate.ApplyRemote(mode)
		logger.Info("applied remote mode change", "mode", mode.String())
	}
}
