// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

func TestPolicyStore_GetSnapshot_Empty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	rules, err := store.GetSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetSnapshot() error: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("GetSnapshot() on empty store returned %d rules, want 0", len(rules))
	}
}

func TestPolicyStore_SaveRule_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	r := &policy.Rule{
		ID:                "refund_limit_500",
		Name:              "Refund limit",
		RiskScoreModifier: 1.0,
		Enabled:           true,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	if err := store.SaveRule(ctx, r); err != nil {
		t.Fatalf("SaveRule() error: %v", err)
	}

	got, err := store.GetRule(ctx, "refund_limit_500")
	if err != nil {
		t.Fatalf("GetRule() error: %v", err)
	}
	if got.Name != "Refund limit" {
		t.Errorf("Name = %q, want %q", got.Name, "Refund limit")
	}

	snap, err := store.GetSnapshot(ctx)
	if err != nil {
		t.Fatalf("GetSnapshot() error: %v", err)
	}
	if len(snap) != 1 {
		t.Errorf("GetSnapshot() len = %d, want 1", len(snap))
	}
}

func TestPolicyStore_SaveRule_GeneratesID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	r := &policy.Rule{Name: "New rule"}
	if err := store.SaveRule(ctx, r); err != nil {
		t.Fatalf("SaveRule() error: %v", err)
	}
	if r.ID == "" {
		t.Error("SaveRule() did not assign an ID")
	}
}

func TestPolicyStore_GetRule_NotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	_, err := store.GetRule(ctx, "missing")
	if !errors.Is(err, policy.ErrRuleNotFound) {
		t.Errorf("GetRule() error = %v, want ErrRuleNotFound", err)
	}
}

func TestPolicyStore_DeleteRule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	if err := store.SaveRule(ctx, &policy.Rule{ID: "rule-1", Name: "A"}); err != nil {
		t.Fatalf("SaveRule() error: %v", err)
	}
	if err := store.DeleteRule(ctx, "rule-1"); err != nil {
		t.Fatalf("DeleteRule() error: %v", err)
	}

	_, err := store.GetRule(ctx, "rule-1")
	if !errors.Is(err, policy.ErrRuleNotFound) {
		t.Errorf("GetRule() after delete error = %v, want ErrRuleNotFound", err)
	}
}

func TestPolicyStore_DeleteRule_NonExistentIsNoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	if err := store.DeleteRule(ctx, "nonexistent"); err != nil {
		t.Errorf("DeleteRule() for non-existent rule error: %v, want nil (no-op)", err)
	}
}

func TestPolicyStore_SnapshotIsImmutableCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	if err := store.SaveRule(ctx, &policy.Rule{ID: "rule-1", Name: "Original"}); err != nil {
		t.Fatalf("SaveRule() error: %v", err)
	}

	snap1, _ := store.GetSnapshot(ctx)
	snap1[0].Name = "Mutated"

	snap2, _ := store.GetSnapshot(ctx)
	if snap2[0].Name != "Original" {
		t.Error("mutating a returned snapshot slice affected the store's internal state")
	}
}

func TestPolicyStore_Subscribe_NotifiesOnChange(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewPolicyStore()
	ch := store.Subscribe(ctx)

	if err := store.SaveRule(context.Background(), &policy.Rule{ID: "rule-1", Name: "A"}); err != nil {
		t.Fatalf("SaveRule() error: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Subscribe() channel did not receive a notification after SaveRule")
	}
}

func TestPolicyStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	var wg sync.WaitGroup
	errCh := make(chan error, 300)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.GetSnapshot(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			r := &policy.Rule{ID: "rule-" + string(rune('a'+(idx%26))), Name: "Concurrent"}
			if err := store.SaveRule(ctx, r); err != nil {
				errCh <- err
			}
		}(i)
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = store.DeleteRule(ctx, "rule-"+string(rune('a'+(idx%26))))
		}(i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("Concurrent access error: %v", err)
	}
}
