package policy

import (
	"context"
	"errors"
)

// ErrRuleNotFound is returned by Store.GetRule when no rule has the given ID.
var ErrRuleNotFound = errors.New("policy: rule not found")

// Store persists and serves the dynamic rule set. Implementations must
// support a read-through cache on the hot path: GetSnapshot is expected to
// be called once per request and must not block on durable storage under
// normal operation.
type Store interface {
	// GetSnapshot returns the current set of rules. Implementations serve
	// this from an in-memory, copy-on-write snapshot; it must never make a
	// network or disk round-trip on the common path.
	GetSnapshot(ctx context.Context) ([]Rule, error)
	// GetRule returns a single rule by ID, or ErrRuleNotFound.
	GetRule(ctx context.Context, id string) (*Rule, error)
	// SaveRule creates or updates a rule. Conditions must already be decoded
	// and validated by the caller (see DecodeConditions) before this is called.
	SaveRule(ctx context.Context, r *Rule) error
	// DeleteRule removes a rule by ID. Deleting an unknown ID is a no-op.
	DeleteRule(ctx context.Context, id string) error
	// Subscribe returns a channel that receives a value whenever the rule
	// set changes, so callers holding a cached snapshot know to refresh.
	// The channel is closed when ctx is canceled.
	Subscribe(ctx context.Context) <-chan struct{}
}
