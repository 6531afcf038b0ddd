package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/audit"
)

// AuditStore implements audit.Store over sqlstore's audit_entries table.
// Unlike the in-memory adapter's bounded ring buffer, this store keeps the
// full history and paginates Query with a real cursor (the row's
// autoincrement id), matching spec.md §6's durable-audit-log requirement for
// deployments that need more than the most recent window of entries.
type AuditStore struct {
	db     *sql.DB
	logger *slog.Logger

	degraded atomic.Int64
}

// NewAuditStore constructs an AuditStore over db.
func NewAuditStore(db *sql.DB, logger *slog.Logger) *AuditStore {
	return &AuditStore{db: db, logger: logger}
}

// Append persists entries. Per the Store contract, a write failure is
// counted (Degraded) and logged but never returned to the caller -- request
// handling must not depend on the audit sink's durability.
func (s *AuditStore) Append(ctx context.Context, entries ...audit.Entry) error {
	for _, e := range entries {
		if err := s.insert(ctx, e); err != nil {
			s.degraded.Add(1)
			s.logger.Error("audit entry failed to persist", "request_id", e.RequestID, "error", err)
		}
	}
	return nil
}

func (s *AuditStore) insert(ctx context.Context, e audit.Entry) error {
	params, err := json.Marshal(e.SanitizedParameters)
	if err != nil {
		return fmt.Errorf("marshal sanitized parameters: %w", err)
	}
	matched, err := json.Marshal(e.MatchedRules)
	if err != nil {
		return fmt.Errorf("marshal matched rules: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO audit_entries
		(request_id, agent_id, action_type, target_resource, sanitized_parameters, decision,
		 risk_score, matched_rules, mode_in_effect, approval_id, forwarded, target_response_digest, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.AgentID, e.ActionType, e.TargetResource, string(params), e.Decision,
		e.RiskScore, string(matched), e.ModeInEffect, e.ApprovalID, e.Forwarded,
		e.TargetResponseDigest, e.Timestamp.Format(time.RFC3339Nano))
	return err
}

// Degraded reports the count of entries that failed to persist.
func (s *AuditStore) Degraded() int64 {
	return s.degraded.Load()
}

// Flush is a no-op: every Append call already commits synchronously.
func (s *AuditStore) Flush(ctx context.Context) error {
	return nil
}

// Close releases the underlying database handle.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

// Query retrieves entries matching filter, newest first, paginating by the
// row's autoincrement id encoded as an opaque cursor string.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, string, error) {
	if !filter.StartTime.IsZero() && !filter.EndTime.IsZero() &&
		filter.EndTime.Sub(filter.StartTime) > 7*24*time.Hour {
		return nil, "", audit.ErrDateRangeExceeded
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var beforeID int64 = 1<<63 - 1
	if filter.Cursor != "" {
		id, err := strconv.ParseInt(filter.Cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("sqlstore: invalid cursor: %w", err)
		}
		beforeID = id
	}

	query := `SELECT id, request_id, agent_id, action_type, target_resource, sanitized_parameters,
		decision, risk_score, matched_rules, mode_in_effect, approval_id, forwarded, target_response_digest, ts
		FROM audit_entries WHERE id < ?`
	args := []interface{}{beforeID}

	if !filter.StartTime.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, filter.StartTime.Format(time.RFC3339Nano))
	}
	if !filter.EndTime.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, filter.EndTime.Format(time.RFC3339Nano))
	}
	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	if filter.ActionType != "" {
		query += ` AND action_type = ?`
		args = append(args, filter.ActionType)
	}
	if filter.Decision != "" {
		query += ` AND decision = ?`
		args = append(args, filter.Decision)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("sqlstore: query audit: %w", err)
	}
	defer rows.Close()

	var (
		result []audit.Entry
		lastID int64
	)
	for rows.Next() {
		var (
			id                      int64
			e                       audit.Entry
			params, matched         string
			ts                      string
		)
		if err := rows.Scan(&id, &e.RequestID, &e.AgentID, &e.ActionType, &e.TargetResource,
			&params, &e.Decision, &e.RiskScore, &matched, &e.ModeInEffect, &e.ApprovalID,
			&e.Forwarded, &e.TargetResponseDigest, &ts); err != nil {
			return nil, "", fmt.Errorf("sqlstore: scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &e.SanitizedParameters); err != nil {
			return nil, "", fmt.Errorf("sqlstore: decode sanitized parameters: %w", err)
		}
		if err := json.Unmarshal([]byte(matched), &e.MatchedRules); err != nil {
			return nil, "", fmt.Errorf("sqlstore: decode matched rules: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, "", fmt.Errorf("sqlstore: decode timestamp: %w", err)
		}
		result = append(result, e)
		lastID = id
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("sqlstore: query audit: %w", err)
	}

	cursor := ""
	if len(result) == limit {
		cursor = strconv.FormatInt(lastID, 10)
	}
	return result, cursor, nil
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)
