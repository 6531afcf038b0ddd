package approval

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an approval_id has no Record.
var ErrNotFound = errors.New("approval: record not found")

// ErrCallbackConflict is returned by Resolve when the caller's expected
// decision conflicts with the record's existing terminal status (e.g. a
// reject callback arrives after the record already expired). A duplicate
// callback carrying the SAME outcome as the current terminal status is not
// a conflict -- see Store.Resolve.
var ErrCallbackConflict = errors.New("approval: callback conflicts with existing terminal state")

// Store persists approval records across the PENDING -> terminal lifecycle.
type Store interface {
	// Create inserts a new PENDING record.
	Create(ctx context.Context, r *Record) error
	// Get returns a record by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// Resolve transitions id to status, recording decider and reason.
	// Idempotent: resolving an already-terminal record to the SAME status
	// returns the existing record without error; resolving it to a
	// DIFFERENT status returns ErrCallbackConflict.
	Resolve(ctx context.Context, id string, status Status, decider, reason string, at time.Time) (*Record, error)
	// ListPending returns every record still in PENDING status.
	ListPending(ctx context.Context) ([]*Record, error)
}
