// Package http provides the HTTP transport adapter for the gateway: a
// REST surface over GatewayService/PolicyAdminService implementing
// spec.md §6's fixed route table.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/approval"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/audit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/breaker"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/service"
)

// GatewayHandler serves spec.md §6's HTTP surface over the application
// layer. Grounded on the teacher's mcpHandler shape (one struct holding
// every collaborator the routes need, a single Routes() constructor) but
// routed with Go 1.22's http.ServeMux method patterns instead of a
// hand-rolled method/path switch, since the route table here is a fixed
// REST surface rather than a single JSON-RPC endpoint.
type GatewayHandler struct {
	gateway     *service.GatewayService
	policies    *service.PolicyAdminService
	gate        *breaker.Gate
	coordinator *approval.Coordinator
	auditStore  audit.Store
	policyStore policy.Store
	logger      *slog.Logger
}

// NewGatewayHandler constructs a GatewayHandler.
func NewGatewayHandler(
	gateway *service.GatewayService,
	policies *service.PolicyAdminService,
	gate *breaker.Gate,
	coordinator *approval.Coordinator,
	auditStore audit.Store,
	policyStore policy.Store,
	logger *slog.Logger,
) *GatewayHandler {
	return &GatewayHandler{
		gateway:     gateway,
		policies:    policies,
		gate:        gate,
		coordinator: coordinator,
		auditStore:  auditStore,
		policyStore: policyStore,
		logger:      logger,
	}
}

// Routes builds the full mux: authenticated API routes plus the
// unauthenticated /health and /metrics endpoints. Bearer-token extraction
// happens in APIKeyMiddleware, wrapped around the api subtree only.
func (h *GatewayHandler) Routes(health http.Handler, metrics http.Handler) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/gateway/evaluate", h.handleEvaluate)
	api.HandleFunc("GET /api/v1/gateway/mode", h.handleGetMode)
	api.HandleFunc("PUT /api/v1/gateway/mode", h.handleSetMode)
	api.HandleFunc("GET /api/v1/policies", h.handleListPolicies)
	api.HandleFunc("POST /api/v1/policies", h.handleCreatePolicy)
	api.HandleFunc("GET /api/v1/policies/{rule_id}", h.handleGetPolicy)
	api.HandleFunc("DELETE /api/v1/policies/{rule_id}", h.handleDeletePolicy)
	api.HandleFunc("GET /api/v1/approvals/{approval_id}", h.handleGetApproval)
	api.HandleFunc("POST /api/v1/approvals/{approval_id}/callback", h.handleApprovalCallback)
	api.HandleFunc("GET /api/v1/audit/logs", h.handleAuditLogs)

	admin := http.NewServeMux()
	admin.HandleFunc("GET /admin/ws/policy-events", h.handlePolicyEventsWS)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", APIKeyMiddleware(api))
	mux.Handle("/admin/", APIKeyMiddleware(admin))
	mux.Handle("/health", health)
	mux.Handle("/metrics", metrics)
	return mux
}

func (h *GatewayHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req service.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	rawKey := bearerKeyFromContext(r.Context())
	resp, status, err := h.gateway.Evaluate(r.Context(), rawKey, req)
	if err != nil {
		writeGatewayError(w, status, err)
		return
	}
	writeJSON(w, status, resp)
}

func (h *GatewayHandler) handleGetMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"mode": h.gate.Current().String()})
}

func (h *GatewayHandler) handleSetMode(w http.ResponseWriter, r *http.Request) {
	modeStr := r.URL.Query().Get("mode")
	if modeStr == "" {
		var body struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			modeStr = body.Mode
		}
	}

	mode, err := breaker.ParseMode(modeStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := h.gate.Set(r.Context(), mode); err != nil {
		h.logger.Warn("mode broadcast failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": mode.String()})
}

func (h *GatewayHandler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	rules, err := h.policies.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list policies")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

func (h *GatewayHandler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		policy.Rule
		Conditions map[string]interface{} `json:"conditions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	created, err := h.policies.Create(r.Context(), body.Rule, body.Conditions)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateRuleID):
			writeError(w, http.StatusConflict, "duplicate_rule_id", err.Error())
		case errors.Is(err, service.ErrBadRequest):
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to create policy")
		}
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *GatewayHandler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	ruleID := r.PathValue("rule_id")
	rule, err := h.policies.Get(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, service.ErrPolicyNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get policy")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *GatewayHandler) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	ruleID := r.PathValue("rule_id")
	if err := h.policies.Delete(r.Context(), ruleID); err != nil {
		if errors.Is(err, service.ErrPolicyNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete policy")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GatewayHandler) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	approvalID := r.PathValue("approval_id")
	rec, err := h.coordinator.Get(r.Context(), approvalID)
	if err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "approval not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get approval")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *GatewayHandler) handleApprovalCallback(w http.ResponseWriter, r *http.Request) {
	approvalID := r.PathValue("approval_id")

	var body struct {
		Decision string `json:"decision"`
		Decider  string `json:"decider"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}

	var rec *approval.Record
	var err error
	switch body.Decision {
	case "approved", "approve":
		rec, err = h.coordinator.Approve(r.Context(), approvalID, body.Decider, body.Reason)
	case "rejected", "reject":
		rec, err = h.coordinator.Reject(r.Context(), approvalID, body.Decider, body.Reason)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "decision must be 'approved' or 'rejected'")
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, approval.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "approval not found")
		case errors.Is(err, approval.ErrCallbackConflict):
			writeError(w, http.StatusConflict, "callback_conflict", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to resolve approval")
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *GatewayHandler) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	filter := audit.Filter{
		AgentID:    r.URL.Query().Get("agent_id"),
		ActionType: r.URL.Query().Get("action_type"),
		Decision:   r.URL.Query().Get("decision"),
		Cursor:     r.URL.Query().Get("cursor"),
		Limit:      50,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartTime = t
		}
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndTime = t
		}
	}

	entries, cursor, err := h.auditStore.Query(r.Context(), filter)
	if err != nil {
		if errors.Is(err, audit.ErrDateRangeExceeded) {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to query audit log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "cursor": cursor})
}

// writeGatewayError maps a GatewayService error, already classified by
// Evaluate's returned status code, to the error envelope. The status code
// itself is the source of truth (decided by gateway_service.go against
// spec.md §7's error-kind table); this only shapes the body.
func writeGatewayError(w http.ResponseWriter, status int, err error) {
	kind := "internal_error"
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		kind = "unauthenticated"
	case errors.Is(err, service.ErrRateLimited):
		kind = "rate_limited"
	case errors.Is(err, service.ErrBadRequest):
		kind = "bad_request"
	}
	writeError(w, status, kind, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: kind, Message: message})
}

// bearerKeyFromContext reads the raw bearer token stashed by APIKeyMiddleware.
// A missing value means no Authorization header was presented; Evaluate's
// own auth.APIKeyService.Validate call rejects the empty string uniformly.
func bearerKeyFromContext(ctx context.Context) string {
	v, _ := ctx.Value(bearerKeyContextKey{}).(string)
	return v
}
