// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/audit"
)

const defaultRecentCap = 1000

// AuditStore implements audit.Store: writes entries as JSON to a sink and
// keeps a bounded in-memory ring buffer for queries, the same shape as the
// teacher's MemoryAuditStore. Best-effort semantics per spec.md §4.9: a
// write failure never propagates to the caller, only increments Degraded.
type AuditStore struct {
	encoder *json.Encoder
	writer  io.Writer
	mu      sync.Mutex
	// recent is a bounded ring buffer of the most recent entries, drop-oldest
	// on overflow.
	recent   []audit.Entry
	cap      int
	Degraded int64 // count of writes that failed to reach the sink
}

func resolveCapacity(capacity ...int) int {
	if len(capacity) > 0 && capacity[0] > 0 {
		return capacity[0]
	}
	return defaultRecentCap
}

// NewAuditStore creates an audit store writing to stdout.
func NewAuditStore(capacity ...int) *AuditStore {
	return NewAuditStoreWithWriter(os.Stdout, capacity...)
}

// NewAuditStoreWithWriter creates an audit store writing to w.
func NewAuditStoreWithWriter(w io.Writer, capacity ...int) *AuditStore {
	cap := resolveCapacity(capacity...)
	return &AuditStore{
		encoder: json.NewEncoder(w),
		writer:  w,
		recent:  make([]audit.Entry, 0, cap),
		cap:     cap,
	}
}

// Append writes entries to the sink and the ring buffer. A sink write
// failure is counted in Degraded but does not stop the remaining entries
// from being buffered, and never returns an error to the caller: per
// spec.md §7 AuditDegraded, request handling must not depend on the
// durability of the audit sink.
func (s *AuditStore) Append(ctx context.Context, entries ...audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if err := s.encoder.Encode(e); err != nil {
			s.Degraded++
		}
		if len(s.recent) >= s.cap {
			copy(s.recent, s.recent[1:])
			s.recent[len(s.recent)-1] = e
		} else {
			s.recent = append(s.recent, e)
		}
	}
	return nil
}

// Flush is a no-op: this implementation has no internal write buffer
// beyond the ring buffer, which is already durable in-process.
func (s *AuditStore) Flush(ctx context.Context) error {
	return nil
}

// Close releases the sink if it is a non-standard file handle.
func (s *AuditStore) Close() error {
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Query retrieves entries matching filter from the in-memory buffer, newest
// first. This implementation never paginates beyond one page (the ring
// buffer is already bounded), so the returned cursor is always empty.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, string, error) {
	if !filter.StartTime.IsZero() && !filter.EndTime.IsZero() &&
		filter.EndTime.Sub(filter.StartTime) > 7*24*time.Hour {
		return nil, "", audit.ErrDateRangeExceeded
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var result []audit.Entry
	for i := len(s.recent) - 1; i >= 0 && len(result) < limit; i-- {
		e := s.recent[i]
		if !filter.StartTime.IsZero() && e.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.Timestamp.After(filter.EndTime) {
			continue
		}
		if filter.Decision != "" && e.Decision != filter.Decision {
			continue
		}
		if filter.ActionType != "" && e.ActionType != filter.ActionType {
			continue
		}
		if filter.AgentID != "" && e.AgentID != filter.AgentID {
			continue
		}
		result = append(result, e)
	}

	return result, "", nil
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)
