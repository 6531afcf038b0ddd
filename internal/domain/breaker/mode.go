// Package breaker holds the process-wide gateway mode: OBSERVE or ENFORCE.
// It is a single atomic value, not a classic request-tripped circuit
// breaker — "breaker" names the role it plays in the decision pipeline
// (spec.md §4.6), gating whether a DENY/PENDING verdict is actually
// enforced or only logged.
package breaker

import (
	"context"
	"fmt"

	"go.uber.org/atomic"
)

// Mode is the gateway-wide enforcement mode.
type Mode int32

const (
	// Enforce applies decisions as computed: DENY blocks, PENDING holds for approval.
	Enforce Mode = iota
	// Observe computes decisions but rewrites DENY/PENDING to allow, recording
	// what would have happened under ENFORCE as the observed decision.
	Observe
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Enforce:
		return "ENFORCE"
	case Observe:
		return "OBSERVE"
	default:
		return "UNKNOWN"
	}
}

// ParseMode parses the wire representation of a Mode ("ENFORCE"/"OBSERVE").
func ParseMode(s string) (Mode, error) {
	switch s {
	case "ENFORCE":
		return Enforce, nil
	case "OBSERVE":
		return Observe, nil
	default:
		return 0, fmt.Errorf("breaker: unknown mode %q", s)
	}
}

// Publisher broadcasts mode changes to other gateway instances, e.g. via
// Redis Pub/Sub. Implementations must not block Set for longer than a
// best-effort publish attempt.
type Publisher interface {
	PublishMode(ctx context.Context, m Mode) error
}

// noopPublisher is used when no shared cache is configured (single-instance
// deployment): mode changes stay local, which is correct there.
type noopPublisher struct{}

func (noopPublisher) PublishMode(context.Context, Mode) error { return nil }

// Gate holds the current Mode in a lock-free atomic, grounded on the
// teacher's use of go.uber.org/atomic for cross-goroutine state that's read
// on every request and written rarely via a privileged API call.
type Gate struct {
	mode      atomic.Int32
	publisher Publisher
}

// NewGate constructs a Gate seeded from configuration at startup. A nil
// publisher is replaced with a no-op (single-instance deployments).
func NewGate(initial Mode, publisher Publisher) *Gate {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	g := &Gate{publisher: publisher}
	g.mode.Store(int32(initial))
	return g
}

// Current returns the gateway's current mode. Safe for concurrent use.
func (g *Gate) Current() Mode {
	return Mode(g.mode.Load())
}

// Set updates the mode and broadcasts the change. It always applies
// locally even if the broadcast fails; broadcast failure is logged by the
// caller, not treated as a request error.
func (g *Gate) Set(ctx context.Context, m Mode) error {
	g.mode.Store(int32(m))
	return g.publisher.PublishMode(ctx, m)
}

// ApplyRemote updates the local mode in response to a broadcast from
// another instance, without re-publishing (avoids an infinite relay loop).
func (g *Gate) ApplyRemote(m Mode) {
	g.mode.Store(int32(m))
}
