package http

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/approval"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/auth"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/breaker"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/pii"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/risk"
	"github.com/Sentinel-Gate/Sentinelgate/internal/service"
)

// testStack bundles every collaborator a GatewayHandler test needs, built
// from the real in-memory adapters rather than mocks so these tests exercise
// the same wiring production uses.
type testStack struct {
	gateway     *service.GatewayService
	policies    *service.PolicyAdminService
	gate        *breaker.Gate
	coordinator *approval.Coordinator
	auditStore  *memory.AuditStore
	authStore   *memory.AuthStore
	policyStore *memory.PolicyStore
	handler     *GatewayHandler
}

func newTestStack() *testStack {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authStore := memory.NewAuthStore()
	authSvc := auth.NewAPIKeyService(authStore)

	limiter := memory.NewRateLimiter()
	policyStore := memory.NewPolicyStore()
	sanitizer := pii.New()
	evaluator := risk.NewEvaluator()
	gate := breaker.NewGate(breaker.Enforce, nil)
	approvalStore := memory.NewApprovalStore()
	coordinator := approval.NewCoordinator(approvalStore, noopApprovalNotifier{}, time.Hour, logger)
	auditStore := memory.NewAuditStoreWithWriter(io.Discard)
	auditSvc := service.NewAuditService(auditStore, logger)

	gateway := service.NewGatewayService(authSvc, limiter, policyStore, sanitizer, evaluator, gate, coordinator, auditSvc, logger)
	policies := service.NewPolicyAdminService(policyStore, logger)
	handler := NewGatewayHandler(gateway, policies, gate, coordinator, auditStore, policyStore, logger)

	// APIKeyMiddleware reads the process-wide auth service set by
	// SetAuthService; each test stack rewires it to its own APIKeyService so
	// tests stay independent despite the package-level singleton.
	SetAuthService(authSvc)

	return &testStack{
		gateway:     gateway,
		policies:    policies,
		gate:        gate,
		coordinator: coordinator,
		auditStore:  auditStore,
		authStore:   authStore,
		policyStore: policyStore,
		handler:     handler,
	}
}

// noopApprovalNotifier implements approval.Notifier without reaching for a
// network call; approval delivery semantics are tested in the approval
// package directly.
type noopApprovalNotifier struct{}

func (noopApprovalNotifier) Notify(_ context.Context, _ *approval.Record) error { return nil }

func seedIdentity(s *memory.AuthStore, rawKey, agentID string, scopes []string) {
	s.AddIdentity(&auth.Identity{ID: agentID, Name: agentID, Enabled: true, Scopes: scopes})
	s.AddKey(&auth.APIKey{Key: auth.HashKey(rawKey), IdentityID: agentID, Name: "test"})
}
