// Package risk computes a cumulative risk score for a request against the
// active policy rule snapshot. The evaluator is a pure function of
// (request, rule snapshot, current time): no I/O, no shared mutable state,
// so it can be replayed deterministically against an audit log entry.
package risk

import "time"

// Request is one inbound agent action awaiting evaluation.
type Request struct {
	// RequestID is the server-assigned, globally unique identifier (a ULID).
	RequestID string `json:"request_id"`
	// AgentID identifies the calling agent.
	AgentID string `json:"agent_id"`
	// ActionType is the kind of action being performed (e.g. "payment",
	// "database_write"). Matched against Rule.ActionTypes.
	ActionType string `json:"action_type"`
	// TargetResource names what the action acts on (e.g. "payments/refund").
	TargetResource string `json:"target_resource"`
	// Parameters is an arbitrary mapping of field name to JSON-like value.
	// A nil map is treated as empty.
	Parameters map[string]interface{} `json:"parameters"`
	// Context carries caller-supplied metadata not used for rule matching
	// but forwarded into the audit trail.
	Context map[string]interface{} `json:"context,omitempty"`
	// ReceivedAt is when the gateway accepted the request (UTC).
	ReceivedAt time.Time `json:"received_at"`
}

// MatchedRule records one rule that matched a request, in the shape the
// evaluation result and audit trail both report.
type MatchedRule struct {
	RuleID            string  `json:"rule_id"`
	Name              string  `json:"name"`
	Priority          int     `json:"priority"`
	RiskScoreModifier float64 `json:"risk_score_modifier"`
}

// Finding is a PII/secret detection produced while sanitizing parameters.
// Defined here (rather than imported from the pii package) so risk has no
// dependency on the sanitizer; the gateway service populates it after
// running the sanitizer separately.
type Finding struct {
	EntityType     string `json:"entity_type"`
	Field          string `json:"field"`
	LowConfidence  bool   `json:"low_confidence,omitempty"`
}

// Result is the outcome of evaluating a Request against a rule snapshot.
type Result struct {
	RequestID  string        `json:"request_id"`
	RiskScore  float64       `json:"risk_score"`
	// MatchedRules is ordered by descending priority, then rule_id, for
	// deterministic reporting and replay.
	MatchedRules []MatchedRule `json:"matched_rules"`
	// Reason is a human-readable explanation built from the highest-priority match.
	Reason string `json:"reason"`
}
