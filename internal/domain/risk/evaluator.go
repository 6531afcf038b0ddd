package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// Evaluator computes a Result for a Request against a rule snapshot.
// Grounded on the teacher's policy.PolicyEngine.Evaluate: priority-ordered
// iteration over candidate rules, reason built from the top match —
// generalized here from boolean allow/deny to risk-score accumulation.
type Evaluator struct{}

// NewEvaluator constructs an Evaluator. It holds no state: all inputs to
// Evaluate are passed explicitly so the function stays pure and replayable.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate finds every rule in snapshot that matches req at instant now,
// sums their risk_score_modifier, and reports the match set ordered by
// descending priority then rule_id. It never mutates req or snapshot.
func (e *Evaluator) Evaluate(req Request, snapshot []policy.Rule, now time.Time) Result {
	params := req.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}

	var matched []policy.Rule
	for i := range snapshot {
		rule := &snapshot[i]
		if !rule.Matches(req.ActionType) {
			continue
		}
		if !rule.Conditions.Match(req.TargetResource, params, now) {
			continue
		}
		matched = append(matched, *rule)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})

	result := Result{
		RequestID:    req.RequestID,
		MatchedRules: make([]MatchedRule, 0, len(matched)),
	}

	for _, r := range matched {
		result.RiskScore += r.RiskScoreModifier
		result.MatchedRules = append(result.MatchedRules, MatchedRule{
			RuleID:            r.ID,
			Name:              r.Name,
			Priority:          r.Priority,
			RiskScoreModifier: r.RiskScoreModifier,
		})
	}
	if result.RiskScore < 0 {
		result.RiskScore = 0
	}

	if len(matched) > 0 {
		top := matched[0]
		result.Reason = fmt.Sprintf("matched rule %q (%s): %s", top.Name, top.ID, top.Description)
	} else {
		result.Reason = "no policy rule matched"
	}

	return result
}
