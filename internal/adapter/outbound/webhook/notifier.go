// Package webhook delivers approval notifications to an external decider
// over HTTP, implementing approval.Notifier. Grounded on the teacher's
// outbound HTTP client discipline (bounded context deadlines on every call)
// and on cenkalti/backoff/v4's bounded-exponential-backoff shape, the same
// library the wider pack reaches for whenever a best-effort outbound call
// needs capped retries rather than a fixed retry count.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/approval"
)

// DefaultTotalDeadline matches spec.md §4.8's "total deadline e.g. 30s".
const DefaultTotalDeadline = 30 * time.Second

// DefaultAttemptTimeout matches spec.md §5's "webhook POST ≤ 5s/attempt".
const DefaultAttemptTimeout = 5 * time.Second

// payload is the wire shape POSTed to the configured webhook URL per
// spec.md §6: the sanitized request plus approval metadata. The external
// service never sees the original, unmasked parameters.
type payload struct {
	ApprovalID     string                 `json:"approval_id"`
	RequestID      string                 `json:"request_id"`
	AgentID        string                 `json:"agent_id"`
	ActionType     string                 `json:"action_type"`
	TargetResource string                 `json:"target_resource"`
	Parameters     map[string]interface{} `json:"parameters"`
	CreatedAt      time.Time              `json:"created_at"`
	ExpiresAt      time.Time              `json:"expires_at"`
	CallbackURL    string                 `json:"callback_url"`
}

// Notifier implements approval.Notifier by POSTing to url. An empty url
// selects the no-op notifier instead (see NewNotifier).
type Notifier struct {
	client         *http.Client
	url            string
	callbackBase   string
	totalDeadline  time.Duration
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// noopNotifier is wired when APPROVAL_WEBHOOK_URL is empty (spec.md §6):
// the approval record is created and stays PENDING until a direct callback
// or the expiry sweeper resolves it.
type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, *approval.Record) error { return nil }

// NewNotifier constructs a Notifier POSTing to url. callbackBase is the
// externally reachable base URL for this gateway's callback endpoint
// (`/api/v1/approvals/{approval_id}/callback`), embedded in the webhook
// payload so the decider knows where to reply. An empty url returns a
// no-op approval.Notifier.
func NewNotifier(url, callbackBase string, logger *slog.Logger) approval.Notifier {
	if url == "" {
		return noopNotifier{}
	}
	return &Notifier{
		client:         &http.Client{},
		url:            url,
		callbackBase:   callbackBase,
		totalDeadline:  DefaultTotalDeadline,
		attemptTimeout: DefaultAttemptTimeout,
		logger:         logger,
	}
}

// Notify POSTs r to the configured webhook URL with bounded exponential
// retries capped at a total elapsed deadline. Per spec.md §7's
// WebhookFailed policy, a Notify failure is reported to the caller (who
// logs it) but never mutates the record: it stays PENDING regardless.
func (n *Notifier) Notify(ctx context.Context, r *approval.Record) error {
	body := payload{
		ApprovalID:     r.ApprovalID,
		RequestID:      r.RequestID,
		AgentID:        r.AgentID,
		ActionType:     r.ActionType,
		TargetResource: r.TargetResource,
		Parameters:     r.SanitizedParameters,
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
		CallbackURL:    fmt.Sprintf("%s/api/v1/approvals/%s/callback", n.callbackBase, r.ApprovalID),
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.totalDeadline)
	defer cancel()

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)

	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, attemptCancel := context.WithTimeout(ctx, n.attemptTimeout)
		defer attemptCancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, n.url, bytes.NewReader(encoded))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("webhook: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook: deliver attempt %d: %w", attempt, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook: attempt %d returned status %d", attempt, resp.StatusCode)
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		n.logger.Warn("approval webhook delivery attempt failed; retrying",
			"approval_id", r.ApprovalID, "error", err, "wait", wait)
	}

	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return fmt.Errorf("webhook: exhausted retries within %s: %w", n.totalDeadline, err)
	}
	return nil
}
