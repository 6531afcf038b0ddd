package audit

import (
	"context"
	"errors"
	"time"
)

// ErrDateRangeExceeded is returned when a query's date range exceeds the
// maximum allowed window.
var ErrDateRangeExceeded = errors.New("date range exceeds maximum of 7 days")

// Store persists and queries the audit trail. Writes are best-effort
// synchronous: if the backing store is unavailable, Append must not fail
// the originating request. Implementations buffer internally (bounded,
// drop-oldest on overflow) and count degraded writes as a metric rather
// than surfacing an error to the caller, per spec.md §4.9.
type Store interface {
	// Append stores one or more entries. Must be non-blocking from the
	// caller's perspective beyond a bounded buffer enqueue.
	Append(ctx context.Context, entries ...Entry) error
	// Query retrieves entries matching filter, newest first, with a
	// pagination cursor. Returns ErrDateRangeExceeded if the requested
	// window exceeds 7 days.
	Query(ctx context.Context, filter Filter) ([]Entry, string, error)
	// Flush forces any buffered entries to storage. Called during shutdown.
	Flush(ctx context.Context) error
	// Close releases resources.
	Close() error
}

// Filter specifies query parameters for audit log queries.
type Filter struct {
	StartTime  time.Time
	EndTime    time.Time
	AgentID    string
	ActionType string
	Decision   string
	Limit      int
	Cursor     string
}
