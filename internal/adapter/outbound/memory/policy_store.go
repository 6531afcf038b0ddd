package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// PolicyStore implements policy.Store with an in-memory map for durable
// CRUD and a copy-on-write snapshot for the hot read path, grounded on the
// teacher's OutboundInterceptor.rules: writes go through a mutex, reads
// load an atomic pointer to an immutable slice with no locking at all.
type PolicyStore struct {
	mu       sync.Mutex
	rules    map[string]policy.Rule
	snapshot atomic.Pointer[[]policy.Rule]

	subMu sync.Mutex
	subs  []chan struct{}
}

// NewPolicyStore creates an empty in-memory policy store.
func NewPolicyStore() *PolicyStore {
	s := &PolicyStore{rules: make(map[string]policy.Rule)}
	empty := []policy.Rule{}
	s.snapshot.Store(&empty)
	return s
}

// GetSnapshot returns the current rule set via the lock-free atomic pointer.
func (s *PolicyStore) GetSnapshot(ctx context.Context) ([]policy.Rule, error) {
	return *s.snapshot.Load(), nil
}

// GetRule returns a single rule by ID.
func (s *PolicyStore) GetRule(ctx context.Context, id string) (*policy.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, policy.ErrRuleNotFound
	}
	return &r, nil
}

// SaveRule creates or updates a rule and republishes the snapshot.
func (s *PolicyStore) SaveRule(ctx context.Context, r *policy.Rule) error {
	s.mu.Lock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.rules[r.ID] = *r
	s.rebuildSnapshotLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// DeleteRule removes a rule by ID. Deleting an unknown ID is a no-op.
func (s *PolicyStore) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	_, existed := s.rules[id]
	if existed {
		delete(s.rules, id)
		s.rebuildSnapshotLocked()
	}
	s.mu.Unlock()

	if existed {
		s.notify()
	}
	return nil
}

// rebuildSnapshotLocked must be called with s.mu held; it publishes a fresh
// immutable slice so concurrent readers never observe a torn write.
func (s *PolicyStore) rebuildSnapshotLocked() {
	next := make([]policy.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		next = append(next, r)
	}
	s.snapshot.Store(&next)
}

// Subscribe returns a channel notified on every rule-set change.
func (s *PolicyStore) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, c := range s.subs {
			if c == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch
}

func (s *PolicyStore) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)
