package risk

import (
	"testing"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

func rule(id string, priority int, modifier float64, actionTypes ...string) policy.Rule {
	return policy.Rule{
		ID:                id,
		Name:              id,
		Description:       "test rule " + id,
		ActionTypes:       actionTypes,
		RiskScoreModifier: modifier,
		Priority:          priority,
		Enabled:           true,
	}
}

func TestEvaluator_Evaluate_NoMatch(t *testing.T) {
	e := NewEvaluator()
	req := Request{RequestID: "r1", ActionType: "refund"}

	result := e.Evaluate(req, nil, time.Now())
	if result.RiskScore != 0 {
		t.Errorf("RiskScore = %v, want 0", result.RiskScore)
	}
	if result.Reason != "no policy rule matched" {
		t.Errorf("Reason = %q, want %q", result.Reason, "no policy rule matched")
	}
	if len(result.MatchedRules) != 0 {
		t.Errorf("MatchedRules = %v, want empty", result.MatchedRules)
	}
}

func TestEvaluator_Evaluate_AccumulatesScore(t *testing.T) {
	e := NewEvaluator()
	snapshot := []policy.Rule{
		rule("low", 1, 0.2, "refund"),
		rule("high", 10, 0.6, "refund"),
	}
	req := Request{RequestID: "r1", ActionType: "refund"}

	result := e.Evaluate(req, snapshot, time.Now())
	if result.RiskScore != 0.8 {
		t.Errorf("RiskScore = %v, want 0.8", result.RiskScore)
	}
	if len(result.MatchedRules) != 2 {
		t.Fatalf("MatchedRules count = %d, want 2", len(result.MatchedRules))
	}
	// Highest priority first.
	if result.MatchedRules[0].RuleID != "high" {
		t.Errorf("MatchedRules[0].RuleID = %q, want high", result.MatchedRules[0].RuleID)
	}
}

func TestEvaluator_Evaluate_IgnoresDisabledAndUnrelated(t *testing.T) {
	e := NewEvaluator()
	disabled := rule("disabled", 5, 1.0, "refund")
	disabled.Enabled = false
	snapshot := []policy.Rule{
		disabled,
		rule("other-action", 5, 1.0, "db_delete"),
	}
	req := Request{RequestID: "r1", ActionType: "refund"}

	result := e.Evaluate(req, snapshot, time.Now())
	if result.RiskScore != 0 {
		t.Errorf("RiskScore = %v, want 0", result.RiskScore)
	}
}

func TestEvaluator_Evaluate_ConditionsGateMatch(t *testing.T) {
	e := NewEvaluator()
	max := 100.0
	r := rule("big-refund", 1, 0.5, "refund")
	r.Conditions = policy.Conditions{MaxAmount: &max}
	snapshot := []policy.Rule{r}

	small := Request{RequestID: "r1", ActionType: "refund", Parameters: map[string]interface{}{"amount": 50.0}}
	if got := e.Evaluate(small, snapshot, time.Now()); got.RiskScore != 0 {
		t.Errorf("small amount should not match max_amount condition, RiskScore = %v", got.RiskScore)
	}

	big := Request{RequestID: "r2", ActionType: "refund", Parameters: map[string]interface{}{"amount": 500.0}}
	if got := e.Evaluate(big, snapshot, time.Now()); got.RiskScore != 0.5 {
		t.Errorf("large amount should match max_amount condition, RiskScore = %v, want 0.5", got.RiskScore)
	}
}

func TestEvaluator_Evaluate_DeterministicOrderingOnTiePriority(t *testing.T) {
	e := NewEvaluator()
	snapshot := []policy.Rule{
		rule("zzz", 5, 0.1, "refund"),
		rule("aaa", 5, 0.1, "refund"),
	}
	req := Request{RequestID: "r1", ActionType: "refund"}

	result := e.Evaluate(req, snapshot, time.Now())
	if result.MatchedRules[0].RuleID != "aaa" {
		t.Errorf("tied priority should break ties by rule ID ascending, got %q first", result.MatchedRules[0].RuleID)
	}
}

func TestEvaluator_Evaluate_NeverNegative(t *testing.T) {
	e := NewEvaluator()
	snapshot := []policy.Rule{rule("neg", 1, -5, "refund")}
	req := Request{RequestID: "r1", ActionType: "refund"}

	result := e.Evaluate(req, snapshot, time.Now())
	if result.RiskScore < 0 {
		t.Errorf("RiskScore = %v, must never be negative", result.RiskScore)
	}
}
