package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/approval"
)

// ApprovalStore implements approval.Store durably over sqlstore's approvals
// table, so a restart does not strand outstanding approvals or lose their
// audit trail. Grounded on memory.ApprovalStore's Resolve semantics
// (idempotent on a matching terminal status, ErrCallbackConflict otherwise).
type ApprovalStore struct {
	db *sql.DB
}

// NewApprovalStore constructs an ApprovalStore over db.
func NewApprovalStore(db *sql.DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

// Create inserts a new PENDING record.
func (s *ApprovalStore) Create(ctx context.Context, r *approval.Record) error {
	params, err := json.Marshal(r.SanitizedParameters)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal sanitized parameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO approvals
		(approval_id, request_id, agent_id, action_type, target_resource, sanitized_parameters,
		 status, created_at, expires_at, decided_at, decider_identity, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, '', '')`,
		r.ApprovalID, r.RequestID, r.AgentID, r.ActionType, r.TargetResource, string(params),
		string(r.Status), r.CreatedAt.Format(time.RFC3339Nano), r.ExpiresAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlstore: create approval: %w", err)
	}
	return nil
}

// Get returns a record by ID, or approval.ErrNotFound.
func (s *ApprovalStore) Get(ctx context.Context, id string) (*approval.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT approval_id, request_id, agent_id, action_type, target_resource,
		sanitized_parameters, status, created_at, expires_at, decided_at, decider_identity, reason
		FROM approvals WHERE approval_id = ?`, id)

	r, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get approval: %w", err)
	}
	return r, nil
}

// Resolve transitions id to status within a transaction so the read-then-write
// idempotency check is race-free across instances sharing the database.
func (s *ApprovalStore) Resolve(ctx context.Context, id string, status approval.Status, decider, reason string, at time.Time) (*approval.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: resolve approval: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT approval_id, request_id, agent_id, action_type, target_resource,
		sanitized_parameters, status, created_at, expires_at, decided_at, decider_identity, reason
		FROM approvals WHERE approval_id = ?`, id)

	r, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, approval.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: resolve approval: %w", err)
	}

	if r.Status.Terminal() {
		if r.Status == status {
			return r, nil
		}
		return nil, approval.ErrCallbackConflict
	}

	decidedAt := at
	_, err = tx.ExecContext(ctx, `UPDATE approvals SET status = ?, decided_at = ?, decider_identity = ?, reason = ?
		WHERE approval_id = ?`, string(status), decidedAt.Format(time.RFC3339Nano), decider, reason, id)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: resolve approval: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlstore: resolve approval: %w", err)
	}

	r.Status = status
	r.DeciderIdentity = decider
	r.Reason = reason
	r.DecidedAt = &decidedAt
	return r, nil
}

// ListPending returns every record still in PENDING status, oldest first.
func (s *ApprovalStore) ListPending(ctx context.Context) ([]*approval.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT approval_id, request_id, agent_id, action_type, target_resource,
		sanitized_parameters, status, created_at, expires_at, decided_at, decider_identity, reason
		FROM approvals WHERE status = ? ORDER BY created_at ASC`, string(approval.Pending))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list pending approvals: %w", err)
	}
	defer rows.Close()

	var result []*approval.Record
	for rows.Next() {
		r, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan approval: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanApproval(row rowScanner) (*approval.Record, error) {
	var (
		r                                     approval.Record
		status                                string
		params                                string
		createdAt, expiresAt                  string
		decidedAt, deciderIdentity, reason     sql.NullString
	)
	if err := row.Scan(&r.ApprovalID, &r.RequestID, &r.AgentID, &r.ActionType, &r.TargetResource,
		&params, &status, &createdAt, &expiresAt, &decidedAt, &deciderIdentity, &reason); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(params), &r.SanitizedParameters); err != nil {
		return nil, fmt.Errorf("decode sanitized parameters: %w", err)
	}
	r.Status = approval.Status(status)
	r.DeciderIdentity = deciderIdentity.String
	r.Reason = reason.String

	var err error
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if r.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return nil, fmt.Errorf("decode expires_at: %w", err)
	}
	if decidedAt.Valid && decidedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, decidedAt.String)
		if err != nil {
			return nil, fmt.Errorf("decode decided_at: %w", err)
		}
		r.DecidedAt = &t
	}
	return &r, nil
}

// Compile-time interface verification.
var _ approval.Store = (*ApprovalStore)(nil)
