// Package sqlstore provides the durable relational backend for the Policy
// Store, Approval Coordinator, and Audit Writer (spec.md §6's "relational
// store holding rules, approvals, audit tables"), selected when
// AUDIT_STORE_URL is set. Grounded on the teacher's exact driver choice,
// modernc.org/sqlite (a direct dependency in the teacher's go.mod even
// though the teacher's own state store used a flat JSON file) -- the CGo-free
// SQLite driver is the natural fit for a single-binary gateway that still
// wants a real relational store without an external database dependency.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schema creates the three tables spec.md §6 names. Using TEXT for
// timestamps (RFC3339) and JSON-encoded TEXT for nested structures keeps
// the schema readable without a JSON1-extension dependency.
const schema = `
CREATE TABLE IF NOT EXISTS rules (
	rule_id             TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	description         TEXT NOT NULL,
	action_types        TEXT NOT NULL,
	conditions          TEXT NOT NULL,
	risk_score_modifier REAL NOT NULL,
	priority            INTEGER NOT NULL,
	enabled             INTEGER NOT NULL,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
	approval_id          TEXT PRIMARY KEY,
	request_id           TEXT NOT NULL,
	agent_id             TEXT NOT NULL,
	action_type          TEXT NOT NULL,
	target_resource      TEXT NOT NULL,
	sanitized_parameters TEXT NOT NULL,
	status               TEXT NOT NULL,
	created_at           TEXT NOT NULL,
	expires_at           TEXT NOT NULL,
	decided_at           TEXT,
	decider_identity     TEXT,
	reason               TEXT
);
CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status);

CREATE TABLE IF NOT EXISTS audit_entries (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id             TEXT NOT NULL,
	agent_id               TEXT NOT NULL,
	action_type            TEXT NOT NULL,
	target_resource        TEXT NOT NULL,
	sanitized_parameters   TEXT NOT NULL,
	decision               TEXT NOT NULL,
	risk_score             REAL NOT NULL,
	matched_rules          TEXT NOT NULL,
	mode_in_effect         TEXT NOT NULL,
	approval_id            TEXT,
	forwarded              INTEGER NOT NULL,
	target_response_digest TEXT,
	ts                     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_entries(ts);
CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_entries(agent_id);
`

// Open opens (creating if necessary) the SQLite database at dsn and applies
// the schema. dsn is whatever AUDIT_STORE_URL carries after the scheme is
// stripped by the caller, e.g. "file:/var/lib/sentinelgate/gateway.db".
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer at a time avoids SQLITE_BUSY churn.

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema to db. Exposed separately from Open so tests
// driving an in-memory sqlmock.DB can call it explicitly against a real
// connection when they want schema-level coverage.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}
