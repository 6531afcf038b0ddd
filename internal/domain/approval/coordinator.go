package approval

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultExpiry matches spec.md §4.8's documented default.
const DefaultExpiry = 24 * time.Hour

// Notifier delivers a newly created approval to an external decider, e.g.
// by POSTing to a configured webhook URL. Implementations must be
// best-effort: a failed delivery must never fail the originating request,
// and must never block past their own bounded retry deadline.
type Notifier interface {
	Notify(ctx context.Context, r *Record) error
}

// Coordinator implements the approval state machine described in spec.md
// §4.8. It owns no goroutine of its own beyond the sweeper it starts.
type Coordinator struct {
	store    Store
	notifier Notifier
	expiry   time.Duration
	logger   *slog.Logger
}

// NewCoordinator constructs a Coordinator. expiry <= 0 uses DefaultExpiry.
func NewCoordinator(store Store, notifier Notifier, expiry time.Duration, logger *slog.Logger) *Coordinator {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Coordinator{store: store, notifier: notifier, expiry: expiry, logger: logger}
}

// Create stores a new PENDING record for requestID and dispatches the
// webhook notification in the background: notification failures never
// block or fail the call, matching spec.md's WebhookFailed semantics.
func (c *Coordinator) Create(ctx context.Context, requestID, agentID, actionType, targetResource string, sanitizedParameters map[string]interface{}) (*Record, error) {
	now := time.Now().UTC()
	r := &Record{
		ApprovalID:          uuid.NewString(),
		RequestID:           requestID,
		AgentID:             agentID,
		ActionType:          actionType,
		TargetResource:      targetResource,
		SanitizedParameters: sanitizedParameters,
		Status:              Pending,
		CreatedAt:           now,
		ExpiresAt:           now.Add(c.expiry),
	}

	if err := c.store.Create(ctx, r); err != nil {
		return nil, err
	}

	go c.dispatch(r)

	return r, nil
}

func (c *Coordinator) dispatch(r *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.notifier.Notify(ctx, r); err != nil {
		c.logger.Warn("approval webhook delivery failed; record remains pending",
			"approval_id", r.ApprovalID,
			"error", err,
		)
	}
}

// Get returns the current state of an approval by ID.
func (c *Coordinator) Get(ctx context.Context, id string) (*Record, error) {
	return c.store.Get(ctx, id)
}

// Approve resolves id to Approved. Idempotent on a record already Approved.
func (c *Coordinator) Approve(ctx context.Context, id, decider, reason string) (*Record, error) {
	return c.store.Resolve(ctx, id, Approved, decider, reason, time.Now().UTC())
}

// Reject resolves id to Rejected. Idempotent on a record already Rejected.
func (c *Coordinator) Reject(ctx context.Context, id, decider, reason string) (*Record, error) {
	return c.store.Resolve(ctx, id, Rejected, decider, reason, time.Now().UTC())
}

// PendingCount returns the number of records currently PENDING, for the
// gateway's pending-approval gauge (spec.md §6) and health checks.
func (c *Coordinator) PendingCount(ctx context.Context) (int, error) {
	pending, err := c.store.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// SweepExpired transitions every PENDING record past its deadline to
// Expired and returns the transitioned records. Intended to run on a
// ticker, the same cancellation discipline as the teacher's
// MemoryRateLimiter.StartCleanup.
func (c *Coordinator) SweepExpired(ctx context.Context) ([]*Record, error) {
	pending, err := c.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var expired []*Record
	for _, r := range pending {
		if !r.IsExpired(now) {
			continue
		}
		resolved, err := c.store.Resolve(ctx, r.ApprovalID, Expired, "", "expiry sweep", now)
		if err != nil {
			c.logger.Error("failed to expire approval", "approval_id", r.ApprovalID, "error", err)
			continue
		}
		expired = append(expired, resolved)
	}

	return expired, nil
}

// RunSweeper starts a ticker-driven SweepExpired loop until ctx is canceled.
func (c *Coordinator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.SweepExpired(ctx); err != nil {
				c.logger.Error("approval sweep failed", "error", err)
			}
		}
	}
}
