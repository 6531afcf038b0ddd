package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// ErrPolicyNotFound is returned when a rule_id has no matching rule.
var ErrPolicyNotFound = errors.New("policy: rule not found")

// ErrDuplicateRuleID is returned by Create when rule_id already exists,
// matching spec.md §6's "409 duplicate rule_id" contract.
var ErrDuplicateRuleID = errors.New("policy: rule_id already exists")

// PolicyAdminService is a thin CRUD wrapper over policy.Store for the
// `/api/v1/policies` admin routes from spec.md §6. Grounded on the teacher's
// PolicyAdminService shape (validate, persist, log) but against the
// tagged-variant policy.Store contract instead of CEL-backed policies, and
// with no separate reload step: policy.Store.SaveRule/DeleteRule already
// invalidate the read-through cache and publish the change event
// themselves (spec.md §4.3), so there is nothing left for this layer to
// trigger after a write.
type PolicyAdminService struct {
	store  policy.Store
	logger *slog.Logger
}

// NewPolicyAdminService constructs a PolicyAdminService over store.
func NewPolicyAdminService(store policy.Store, logger *slog.Logger) *PolicyAdminService {
	return &PolicyAdminService{store: store, logger: logger}
}

// List returns every rule in the active snapshot.
func (s *PolicyAdminService) List(ctx context.Context) ([]policy.Rule, error) {
	return s.store.GetSnapshot(ctx)
}

// Get returns a single rule by ID. Returns ErrPolicyNotFound if absent.
func (s *PolicyAdminService) Get(ctx context.Context, ruleID string) (*policy.Rule, error) {
	r, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, policy.ErrRuleNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

// Create validates and stores a new rule. rawConditions is the raw JSON
// mapping from the request body; it is decoded here (rather than by the
// HTTP adapter) so every condition-vocabulary rejection goes through the
// same path regardless of caller. Returns ErrDuplicateRuleID if rule_id
// already exists (spec.md §6).
func (s *PolicyAdminService) Create(ctx context.Context, r policy.Rule, rawConditions map[string]interface{}) (*policy.Rule, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("%w: rule_id is required", ErrBadRequest)
	}
	if r.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}
	if r.RiskScoreModifier < 0 {
		return nil, fmt.Errorf("%w: risk_score_modifier must be >= 0", ErrBadRequest)
	}

	if _, err := s.store.GetRule(ctx, r.ID); err == nil {
		return nil, ErrDuplicateRuleID
	} else if !errors.Is(err, policy.ErrRuleNotFound) {
		return nil, fmt.Errorf("check existing rule: %w", err)
	}

	conditions, err := policy.DecodeConditions(rawConditions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	r.Conditions = conditions

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := s.store.SaveRule(ctx, &r); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}

	s.logger.Info("policy rule created", "rule_id", r.ID, "name", r.Name, "priority", r.Priority)
	return s.store.GetRule(ctx, r.ID)
}

// Delete removes a rule by ID. Returns ErrPolicyNotFound if absent, matching
// spec.md §6's "404" for an unknown rule_id on DELETE.
func (s *PolicyAdminService) Delete(ctx context.Context, ruleID string) error {
	if _, err := s.Get(ctx, ruleID); err != nil {
		return err
	}
	if err := s.store.DeleteRule(ctx, ruleID); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	s.logger.Info("policy rule deleted", "rule_id", ruleID)
	return nil
}
