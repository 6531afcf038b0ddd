package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

func newTestPolicyAdminService(t *testing.T) (*PolicyAdminService, *memory.PolicyStore) {
	t.Helper()
	store := memory.NewPolicyStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPolicyAdminService(store, logger), store
}

func TestPolicyAdminService_CreateThenGetThenDelete(t *testing.T) {
	svc, _ := newTestPolicyAdminService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, policy.Rule{
		ID:                "refund_limit_500",
		Name:              "refund_limit_500",
		ActionTypes:       []string{"refund"},
		RiskScoreModifier: 1.0,
		Priority:          10,
		Enabled:           true,
	}, map[string]interface{}{"max_amount": 500.0})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Conditions.MaxAmount == nil || *created.Conditions.MaxAmount != 500.0 {
		t.Errorf("Conditions.MaxAmount = %v, want 500.0", created.Conditions.MaxAmount)
	}

	got, err := svc.Get(ctx, "refund_limit_500")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != "refund_limit_500" {
		t.Errorf("Get().ID = %q, want refund_limit_500", got.ID)
	}

	if err := svc.Delete(ctx, "refund_limit_500"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := svc.Get(ctx, "refund_limit_500"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrPolicyNotFound", err)
	}
}

func TestPolicyAdminService_CreateDuplicateRuleID(t *testing.T) {
	svc, _ := newTestPolicyAdminService(t)
	ctx := context.Background()

	rule := policy.Rule{ID: "dup", Name: "dup", RiskScoreModifier: 0.5, Enabled: true}
	if _, err := svc.Create(ctx, rule, nil); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}

	_, err := svc.Create(ctx, rule, nil)
	if !errors.Is(err, ErrDuplicateRuleID) {
		t.Errorf("second Create() error = %v, want ErrDuplicateRuleID", err)
	}
}

func TestPolicyAdminService_CreateUnknownConditionKey(t *testing.T) {
	svc, _ := newTestPolicyAdminService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, policy.Rule{ID: "r1", Name: "r1", Enabled: true}, map[string]interface{}{
		"not_a_real_condition": true,
	})
	if err == nil {
		t.Fatal("expected an error for an unrecognized condition key")
	}
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("error = %v, want ErrBadRequest", err)
	}
}

func TestPolicyAdminService_CreateMissingFields(t *testing.T) {
	svc, _ := newTestPolicyAdminService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, policy.Rule{Name: "no-id"}, nil); !errors.Is(err, ErrBadRequest) {
		t.Errorf("missing rule_id: error = %v, want ErrBadRequest", err)
	}
	if _, err := svc.Create(ctx, policy.Rule{ID: "no-name"}, nil); !errors.Is(err, ErrBadRequest) {
		t.Errorf("missing name: error = %v, want ErrBadRequest", err)
	}
	if _, err := svc.Create(ctx, policy.Rule{ID: "neg", Name: "neg", RiskScoreModifier: -1}, nil); !errors.Is(err, ErrBadRequest) {
		t.Errorf("negative modifier: error = %v, want ErrBadRequest", err)
	}
}

func TestPolicyAdminService_DeleteNotFound(t *testing.T) {
	svc, _ := newTestPolicyAdminService(t)
	if err := svc.Delete(context.Background(), "missing"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("Delete() error = %v, want ErrPolicyNotFound", err)
	}
}

func TestPolicyAdminService_List(t *testing.T) {
	svc, _ := newTestPolicyAdminService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, policy.Rule{ID: "a", Name: "a", Enabled: true}, nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(ctx, policy.Rule{ID: "b", Name: "b", Enabled: true}, nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rules, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("len(rules) = %d, want 2", len(rules))
	}
}
