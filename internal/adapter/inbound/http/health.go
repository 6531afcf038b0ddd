package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/approval"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker verifies component health for spec.md §6's liveness
// endpoint: the rate limiter, the policy store's snapshot path, the
// approval coordinator's store, and the audit service's backpressure state.
type HealthChecker struct {
	limiter     ratelimit.RateLimiter
	policyStore policy.Store
	coordinator *approval.Coordinator
	auditSvc    *service.AuditService
	version     string
}

// NewHealthChecker creates a HealthChecker. Pass nil for components that
// aren't available.
func NewHealthChecker(
	limiter ratelimit.RateLimiter,
	policyStore policy.Store,
	coordinator *approval.Coordinator,
	auditSvc *service.AuditService,
	version string,
) *HealthChecker {
	return &HealthChecker{
		limiter:     limiter,
		policyStore: policyStore,
		coordinator: coordinator,
		auditSvc:    auditSvc,
		version:     version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if h.policyStore != nil {
		if snap, err := h.policyStore.GetSnapshot(ctx); err != nil {
			checks["policy_store"] = fmt.Sprintf("degraded: %v", err)
			healthy = false
		} else {
			checks["policy_store"] = fmt.Sprintf("ok: %d rules", len(snap))
		}
	} else {
		checks["policy_store"] = "not configured"
	}

	if h.coordinator != nil {
		if pending, err := h.coordinator.PendingCount(ctx); err != nil {
			checks["approvals"] = fmt.Sprintf("degraded: %v", err)
			healthy = false
		} else {
			checks["approvals"] = fmt.Sprintf("ok: %d pending", pending)
		}
	} else {
		checks["approvals"] = "not configured"
	}

	if h.limiter != nil {
		checks["rate_limiter"] = "ok"
	} else {
		checks["rate_limiter"] = "not configured"
	}

	if h.auditSvc != nil {
		depth := h.auditSvc.ChannelDepth()
		capacity := h.auditSvc.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}

		if percentFull > 90 {
			checks["audit"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["audit"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}

		if drops := h.auditSvc.DroppedRecords(); drops > 0 {
			checks["audit_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["audit"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
