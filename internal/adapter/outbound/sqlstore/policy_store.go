package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/cache"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

const policyChangeChannel = "sentinelgate:policy"

// PolicyStore implements policy.Store durably over sqlstore's rules table.
// The hot read path is identical to the in-memory adapter's: writes take a
// mutex and persist to SQLite, then rebuild an atomic.Pointer snapshot so
// GetSnapshot never blocks on the database.
type PolicyStore struct {
	db *sql.DB

	mu       sync.Mutex
	snapshot atomic.Pointer[[]policy.Rule]

	subMu sync.Mutex
	subs  []chan struct{}

	bus        cache.Bus
	lastDigest atomic.Uint64
}

// NewPolicyStore constructs a PolicyStore and loads the current rule set
// from db into the initial snapshot. bus may be nil; when non-nil, every
// local write publishes the new snapshot's fingerprint on
// policyChangeChannel. PolicyStore does not subscribe to that channel: an
// instance that did not perform the write picks the change up on its next
// RunRefresher poll.
func NewPolicyStore(ctx context.Context, db *sql.DB, bus cache.Bus) (*PolicyStore, error) {
	s := &PolicyStore{db: db, bus: bus}
	empty := []policy.Rule{}
	s.snapshot.Store(&empty)

	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// GetSnapshot returns the current rule set via the lock-free atomic pointer.
func (s *PolicyStore) GetSnapshot(ctx context.Context) ([]policy.Rule, error) {
	return *s.snapshot.Load(), nil
}

// GetRule returns a single rule by ID, read straight from SQLite so a
// just-issued write by a peer instance is visible even before this
// instance's next reload.
func (s *PolicyStore) GetRule(ctx context.Context, id string) (*policy.Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT rule_id, name, description, action_types, conditions,
		risk_score_modifier, priority, enabled, created_at, updated_at FROM rules WHERE rule_id = ?`, id)

	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, policy.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get rule: %w", err)
	}
	return r, nil
}

// SaveRule upserts r, assigning a fresh ID when empty, then republishes the
// in-memory snapshot and (if a bus is configured) notifies peer instances.
func (s *PolicyStore) SaveRule(ctx context.Context, r *policy.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	actionTypes, err := json.Marshal(r.ActionTypes)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal action types: %w", err)
	}
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal conditions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO rules
		(rule_id, name, description, action_types, conditions, risk_score_modifier, priority, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			action_types = excluded.action_types,
			conditions = excluded.conditions,
			risk_score_modifier = excluded.risk_score_modifier,
			priority = excluded.priority,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		r.ID, r.Name, r.Description, string(actionTypes), string(conditions),
		r.RiskScoreModifier, r.Priority, r.Enabled, r.CreatedAt.Format(time.RFC3339Nano), r.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlstore: save rule: %w", err)
	}

	if err := s.reloadLocked(ctx); err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// DeleteRule removes a rule by ID. Deleting an unknown ID is a no-op.
func (s *PolicyStore) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE rule_id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlstore: delete rule: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil
	}

	if err := s.reloadLocked(ctx); err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// Subscribe returns a channel notified on every local rule-set change (and,
// when RunRefresher is running, every externally-detected one too).
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

// reload refreshes the snapshot from SQLite under s.mu.
func (s *PolicyStore) reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *PolicyStore) reloadLocked(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT rule_id, name, description, action_types, conditions,
		risk_score_modifier, priority, enabled, created_at, updated_at FROM rules`)
	if err != nil {
		return fmt.Errorf("sqlstore: reload rules: %w", err)
	}
	defer rows.Close()

	next := make([]policy.Rule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return fmt.Errorf("sqlstore: scan rule: %w", err)
		}
		next = append(next, *r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlstore: reload rules: %w", err)
	}

	s.snapshot.Store(&next)
	return nil
}

// rowScanner abstracts over *sql.Row and *sql.Rows so scanRule serves both
// the single-rule and full-table query paths.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*policy.Rule, error) {
	var (
		r                        policy.Rule
		actionTypes, conditions  string
		createdAt, updatedAt     string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &actionTypes, &conditions,
		&r.RiskScoreModifier, &r.Priority, &r.Enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(actionTypes), &r.ActionTypes); err != nil {
		return nil, fmt.Errorf("decode action types: %w", err)
	}
	if err := json.Unmarshal([]byte(conditions), &r.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	var err error
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &r, nil
}

// notify wakes local subscribers and, if a bus is configured, publishes a
// fingerprint of the new snapshot -- an xxhash of each rule's ID and
// UpdatedAt in sorted order, the same digest RunRefresher compares to decide
// whether a poll tick changed anything.
func (s *PolicyStore) notify(ctx context.Context) {
	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.subMu.Unlock()

	if s.bus == nil {
		return
	}
	digest := s.snapshotDigest()
	s.lastDigest.Store(digest)
	_ = s.bus.Publish(ctx, policyChangeChannel, []byte(fmt.Sprintf("%x", digest)))
}

func (s *PolicyStore) snapshotDigest() uint64 {
	rules := *s.snapshot.Load()
	ids := make([]string, 0, len(rules))
	byID := make(map[string]policy.Rule, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
		byID[r.ID] = r
	}
	sort.Strings(ids)

	h := xxhash.New()
	for _, id := range ids {
		r := byID[id]
		fmt.Fprintf(h, "%s|%s\n", r.ID, r.UpdatedAt.Format(time.RFC3339Nano))
	}
	return h.Sum64()
}

// RunRefresher reloads the snapshot from the database every interval and
// wakes subscribers only when the rule set changed (the snapshotDigest
// before and after the reload differ). This is the mechanism that lets an instance which did not
// perform the write still observe policy changes made through a peer, or
// via direct SQL/administrative access to the database file.
func (s *PolicyStore) RunRefresher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := s.snapshotDigest()
			if err := s.reload(ctx); err != nil {
				continue
			}
			after := s.snapshotDigest()
			if after != before {
				s.subMu.Lock()
				for _, ch := range s.subs {
					select {
					case ch <- struct{}{}:
					default:
					}
				}
				s.subMu.Unlock()
			}
		}
	}
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)
