// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/approval"
)

// ApprovalStore implements approval.Store with an in-memory map, grounded on
// the teacher's action.ApprovalStore (map + FIFO order slice under a single
// mutex). Unlike the teacher's store, records are never evicted for capacity
// -- the expiry sweeper is what moves records out of PENDING.
type ApprovalStore struct {
	mu      sync.Mutex
	records map[string]*approval.Record
	order   []string
}

// NewApprovalStore creates an empty in-memory approval store.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{records: make(map[string]*approval.Record)}
}

// Create inserts a new PENDING record.
func (s *ApprovalStore) Create(ctx context.Context, r *approval.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *r
	s.records[rec.ApprovalID] = &rec
	s.order = append(s.order, rec.ApprovalID)
	return nil
}

// Get returns a copy of the record by ID, or approval.ErrNotFound.
func (s *ApprovalStore) Get(ctx context.Context, id string) (*approval.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	rec := *r
	return &rec, nil
}

// Resolve transitions id to status, recording decider/reason/timestamp.
// Idempotent on a matching terminal status; conflicts on a mismatched one.
func (s *ApprovalStore) Resolve(ctx context.Context, id string, status approval.Status, decider, reason string, at time.Time) (*approval.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, approval.ErrNotFound
	}

	if r.Status.Terminal() {
		if r.Status == status {
			rec := *r
			return &rec, nil
		}
		return nil, approval.ErrCallbackConflict
	}

	r.Status = status
	r.DeciderIdentity = decider
	r.Reason = reason
	decidedAt := at
	r.DecidedAt = &decidedAt

	rec := *r
	return &rec, nil
}

// ListPending returns copies of every record still in PENDING status, in
// creation order.
func (s *ApprovalStore) ListPending(ctx context.Context) ([]*approval.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*approval.Record, 0, len(s.order))
	for _, id := range s.order {
		r, ok := s.records[id]
		if !ok || r.Status != approval.Pending {
			continue
		}
		rec := *r
		result = append(result, &rec)
	}
	return result, nil
}

// Compile-time interface verification.
var _ approval.Store = (*ApprovalStore)(nil)
