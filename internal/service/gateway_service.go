package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/approval"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/audit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/auth"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/breaker"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/decision"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/pii"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/risk"
	"github.com/Sentinel-Gate/Sentinelgate/internal/observability"
)

// Gateway-level error kinds, consulted by the HTTP adapter to pick a status
// code without re-deriving the reason from an error string. Mirrors spec.md
// §7's abstract error kinds; only the ones GatewayService itself raises.
var (
	ErrUnauthenticated = errors.New("gateway: unauthenticated")
	ErrRateLimited     = errors.New("gateway: rate limited")
	ErrBadRequest      = errors.New("gateway: bad request")
)

// EvaluateRequest is the wire shape of spec.md §6's evaluate request body.
type EvaluateRequest struct {
	AgentID        string                 `json:"agent_id"`
	ActionType     string                 `json:"action_type"`
	TargetResource string                 `json:"target_resource"`
	Parameters     map[string]interface{} `json:"parameters"`
	Context        map[string]interface{} `json:"context,omitempty"`
}

// EvaluateResponse is the wire shape of spec.md §6's evaluate response body.
type EvaluateResponse struct {
	RequestID        string              `json:"request_id"`
	Status           string              `json:"status"`
	Decision         string              `json:"decision"`
	Message          string              `json:"message"`
	RiskLevel        string              `json:"risk_level"`
	RiskScore        float64             `json:"risk_score"`
	MatchedPolicies  []risk.MatchedRule  `json:"matched_policies"`
	ApprovalID       string              `json:"approval_id,omitempty"`
	ApprovalURL      string              `json:"approval_url,omitempty"`
	Forwarded        bool                `json:"forwarded"`
	TargetResponse   interface{}         `json:"target_response,omitempty"`
	Mode             string              `json:"mode"`
	ObservedDecision string              `json:"observed_decision,omitempty"`
}

// Forwarder is the pluggable sink the true request is handed to once a
// decision resolves to allow. spec.md §1 fixes only this contract, not its
// transport: a reverse-proxy HTTP client, a message publish, a no-op stub
// for environments with no downstream system.
type Forwarder interface {
	Forward(ctx context.Context, req risk.Request) (response interface{}, err error)
}

// noopForwarder treats every forwardable request as accepted without a
// downstream call, matching spec.md §1's Non-goals: Sentinel fixes the
// forwarding contract but ships no transport of its own.
type noopForwarder struct{}

func (noopForwarder) Forward(context.Context, risk.Request) (interface{}, error) {
	return nil, nil
}

// GatewayOption configures a GatewayService.
type GatewayOption func(*GatewayService)

// WithThresholds overrides the default decision thresholds.
func WithThresholds(t decision.Thresholds) GatewayOption {
	return func(g *GatewayService) { g.thresholds = t }
}

// WithForwarder overrides the default no-op forwarder.
func WithForwarder(f Forwarder) GatewayOption {
	return func(g *GatewayService) { g.forwarder = f }
}

// WithDefaultRateLimit overrides the rate limit config applied to agents
// with no RateLimitOverride on their Identity.
func WithDefaultRateLimit(c ratelimit.RateLimitConfig) GatewayOption {
	return func(g *GatewayService) { g.defaultRateLimit = c }
}

// WithFullTargetResponse controls whether the audited/returned target
// response body is the full forwarder response or a digest. Per spec.md
// §9's open question, the default is a digest; this opts into the full body.
func WithFullTargetResponse(full bool) GatewayOption {
	return func(g *GatewayService) { g.fullTargetResponse = full }
}

// WithPolicyTimeout overrides the default snapshot-read deadline.
func WithPolicyTimeout(d time.Duration) GatewayOption {
	return func(g *GatewayService) { g.policyTimeout = d }
}

// WithSanitizeTimeout overrides the default PII-scan deadline.
func WithSanitizeTimeout(d time.Duration) GatewayOption {
	return func(g *GatewayService) { g.sanitizeTimeout = d }
}

// Metrics receives per-request observations from the evaluation pipeline.
// Defined here rather than in the http adapter so the pipeline can record
// without importing Prometheus directly; the http adapter supplies the
// Prometheus-backed implementation (spec.md §6's metrics table).
type Metrics interface {
	ObserveRequest(agentID, actionType, decision string)
	ObserveRiskScore(actionType string, score float64)
	ObservePIIFinding(entityType string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, string, string) {}
func (noopMetrics) ObserveRiskScore(string, float64)      {}
func (noopMetrics) ObservePIIFinding(string)              {}

// WithMetrics wires a Metrics recorder. Defaults to a no-op.
func WithMetrics(m Metrics) GatewayOption {
	return func(g *GatewayService) { g.metrics = m }
}

// WithTracer wires a tracer for per-stage spans. Defaults to whatever
// tracer otel.Tracer resolves against the global TracerProvider, which is a
// no-op until observability.Setup installs a real one.
func WithTracer(t trace.Tracer) GatewayOption {
	return func(g *GatewayService) { g.tracer = t }
}

// GatewayService orchestrates the full request-evaluation pipeline from
// spec.md §2: authenticate -> rate-check -> sanitize -> evaluate ->
// decide (breaker+engine) -> escalate if pending -> audit -> respond.
// It mirrors the teacher's PolicyEvaluationService shape -- a thin
// application-layer wrapper composing domain engines -- generalized from a
// single CEL policy check to the full nine-component pipeline.
type GatewayService struct {
	authSvc     *auth.APIKeyService
	limiter     ratelimit.RateLimiter
	policyStore policy.Store
	sanitizer   *pii.Sanitizer
	evaluator   *risk.Evaluator
	gate        *breaker.Gate
	coordinator *approval.Coordinator
	auditSvc    *AuditService
	forwarder   Forwarder
	metrics     Metrics
	tracer      trace.Tracer
	logger      *slog.Logger

	thresholds       decision.Thresholds
	defaultRateLimit ratelimit.RateLimitConfig
	policyTimeout    time.Duration
	sanitizeTimeout  time.Duration
	fullTargetResponse bool

	ids *monotonicIDSource

	snapMu       sync.Mutex
	lastSnapshot []policy.Rule
	haveSnapshot bool
}

// NewGatewayService wires the nine pipeline components into one orchestrator.
func NewGatewayService(
	authSvc *auth.APIKeyService,
	limiter ratelimit.RateLimiter,
	policyStore policy.Store,
	sanitizer *pii.Sanitizer,
	evaluator *risk.Evaluator,
	gate *breaker.Gate,
	coordinator *approval.Coordinator,
	auditSvc *AuditService,
	logger *slog.Logger,
	opts ...GatewayOption,
) *GatewayService {
	g := &GatewayService{
		authSvc:         authSvc,
		limiter:         limiter,
		policyStore:     policyStore,
		sanitizer:       sanitizer,
		evaluator:       evaluator,
		gate:            gate,
		coordinator:     coordinator,
		auditSvc:        auditSvc,
		forwarder:       noopForwarder{},
		metrics:         noopMetrics{},
		tracer:          otel.Tracer("sentinelgate/service"),
		logger:          logger,
		thresholds:      decision.DefaultThresholds(),
		defaultRateLimit: ratelimit.RateLimitConfig{Rate: 100, Burst: 100, Period: time.Minute},
		policyTimeout:   time.Second,
		sanitizeTimeout: 500 * time.Millisecond,
		ids:             newMonotonicIDSource(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Evaluate runs one inbound action through the full pipeline. rawKey is the
// bearer token stripped of the "Bearer " prefix by the HTTP adapter. The
// returned int is the HTTP status the caller should use when err is
// non-nil; err wraps one of the Err* sentinels above for classification.
func (g *GatewayService) Evaluate(ctx context.Context, rawKey string, req EvaluateRequest) (*EvaluateResponse, int, error) {
	ctx, rootEnd := observability.Stage(ctx, g.tracer, "evaluate_request")
	defer rootEnd(nil)

	authCtx, authEnd := observability.Stage(ctx, g.tracer, "authenticate")
	identity, err := g.authenticate(authCtx, rawKey, req.ActionType)
	authEnd(err)
	if err != nil {
		return nil, http.StatusUnauthorized, err
	}

	if req.ActionType == "" || req.TargetResource == "" {
		return nil, http.StatusBadRequest, fmt.Errorf("%w: action_type and target_resource are required", ErrBadRequest)
	}

	rlCtx, rlEnd := observability.Stage(ctx, g.tracer, "rate_check")
	rlErr := g.checkRateLimit(rlCtx, identity)
	rlEnd(rlErr)
	if rlErr != nil {
		return nil, http.StatusTooManyRequests, rlErr
	}

	requestID := g.ids.New()
	receivedAt := time.Now().UTC()

	params := req.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	sanitizeCtx, sanitizeEnd := observability.Stage(ctx, g.tracer, "sanitize")
	sanitized, findings := g.sanitize(sanitizeCtx, params)
	sanitizeEnd(nil)
	for _, f := range findings {
		g.metrics.ObservePIIFinding(string(f.EntityType))
	}

	riskReq := risk.Request{
		RequestID:      requestID,
		AgentID:        identity.ID,
		ActionType:     req.ActionType,
		TargetResource: req.TargetResource,
		Parameters:     params,
		Context:        req.Context,
		ReceivedAt:     receivedAt,
	}

	evalCtx, evalEnd := observability.Stage(ctx, g.tracer, "evaluate")
	snapshot, degradedPolicy := g.snapshot(evalCtx)
	result := g.evaluator.Evaluate(riskReq, snapshot, receivedAt)
	if degradedPolicy && len(snapshot) == 0 {
		// No last-known snapshot exists: fail closed per spec.md §7.
		result = risk.Result{
			RequestID: requestID,
			RiskScore: g.thresholds.BlockThreshold,
			Reason:    "policy store unavailable and no cached snapshot; failing closed",
		}
	}
	evalEnd(nil)

	_, decideEnd := observability.Stage(ctx, g.tracer, "decide")
	mode := g.gate.Current()
	outcome := decision.Decide(result.RiskScore, g.thresholds, mode)
	decideEnd(nil)

	resp := &EvaluateResponse{
		RequestID:       requestID,
		Decision:        string(outcome.Emitted),
		RiskLevel:       string(decision.Level(result.RiskScore)),
		RiskScore:       result.RiskScore,
		MatchedPolicies: result.MatchedRules,
		Mode:            mode.String(),
	}
	if outcome.Observed != "" {
		resp.ObservedDecision = string(outcome.Observed)
	}
	resp.Message = outcome.Status(result.Reason)
	resp.Status = statusForVerdict(outcome.Emitted)

	var approvalID string
	if outcome.True == decision.Pending && mode == breaker.Enforce {
		rec, aerr := g.coordinator.Create(ctx, requestID, identity.ID, req.ActionType, req.TargetResource, sanitized)
		if aerr != nil {
			g.logger.Error("failed to create approval record", "request_id", requestID, "error", aerr)
		} else {
			approvalID = rec.ApprovalID
			resp.ApprovalID = rec.ApprovalID
			resp.ApprovalURL = fmt.Sprintf("/api/v1/approvals/%s", rec.ApprovalID)
		}
	}

	var targetResp interface{}
	if outcome.Emitted == decision.Allow {
		var ferr error
		targetResp, ferr = g.forwarder.Forward(ctx, riskReq)
		if ferr != nil {
			g.logger.Warn("forwarding failed", "request_id", requestID, "error", ferr)
			targetResp = nil
		} else {
			resp.Forwarded = true
			if g.fullTargetResponse {
				resp.TargetResponse = targetResp
			}
		}
	}

	entry := audit.Entry{
		RequestID:           requestID,
		AgentID:             identity.ID,
		ActionType:          req.ActionType,
		TargetResource:      req.TargetResource,
		SanitizedParameters: sanitized,
		Decision:            string(outcome.True),
		RiskScore:           result.RiskScore,
		MatchedRules:        toAuditRules(result.MatchedRules),
		ModeInEffect:        mode.String(),
		ApprovalID:          approvalID,
		Forwarded:           resp.Forwarded,
		Timestamp:           receivedAt,
	}
	if resp.Forwarded && !g.fullTargetResponse {
		entry.TargetResponseDigest = digestResponse(targetResp)
	}
	_, auditEnd := observability.Stage(ctx, g.tracer, "audit")
	g.auditSvc.Record(entry)
	auditEnd(nil)

	g.metrics.ObserveRequest(identity.ID, req.ActionType, string(outcome.Emitted))
	g.metrics.ObserveRiskScore(req.ActionType, result.RiskScore)

	return resp, decision.HTTPStatus(outcome.Emitted), nil
}

// authenticate runs the Key Store contract from spec.md §4.1: prefix check
// then store lookup, both folded into auth.APIKeyService.Validate. A
// well-formed key for a disabled agent, or one whose scopes exclude
// actionType, is treated identically to an invalid key.
func (g *GatewayService) authenticate(ctx context.Context, rawKey, actionType string) (*auth.Identity, error) {
	identity, err := g.authSvc.Validate(ctx, rawKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !identity.HasScope(actionType) {
		return nil, fmt.Errorf("%w: action %q outside granted scope", ErrUnauthenticated, actionType)
	}
	return identity, nil
}

// checkRateLimit applies spec.md §4.2's fail-open contract: a limiter error
// (shared store unreachable) is logged as a degradation event and the
// request is allowed through rather than rejected.
func (g *GatewayService) checkRateLimit(ctx context.Context, identity *auth.Identity) error {
	cfg := g.defaultRateLimit
	if identity.RateLimitOverride != nil {
		cfg = *identity.RateLimitOverride
	}

	key := ratelimit.FormatKey(ratelimit.KeyTypeUser, identity.ID)
	result, err := g.limiter.Allow(ctx, key, cfg)
	if err != nil {
		g.logger.Warn("rate limiter degraded; failing open", "agent_id", identity.ID, "error", err)
		return nil
	}
	if !result.Allowed {
		return fmt.Errorf("%w: retry after %s", ErrRateLimited, result.RetryAfter)
	}
	return nil
}

// sanitize enforces the 500ms PII-scan deadline from spec.md §5: a timeout
// falls back to a second, degraded pass (regex-only, no checksum
// validation) rather than failing the request.
func (g *GatewayService) sanitize(ctx context.Context, params map[string]interface{}) (map[string]interface{}, []pii.Finding) {
	type result struct {
		sanitized map[string]interface{}
		findings  []pii.Finding
	}
	done := make(chan result, 1)
	go func() {
		sanitized, findings := g.sanitizer.Sanitize(params, false)
		done <- result{sanitized, findings}
	}()

	select {
	case r := <-done:
		return r.sanitized, r.findings
	case <-time.After(g.sanitizeTimeout):
		g.logger.Warn("pii sanitizer exceeded deadline; falling back to regex-only")
		sanitized, findings := g.sanitizer.Sanitize(params, true)
		return sanitized, findings
	}
}

// snapshot reads the active rule set with the 1s deadline from spec.md §5.
// On failure it serves the last-known-good snapshot and reports degraded;
// the very first failure with no prior snapshot returns (nil, true) so the
// caller can fail closed per spec.md §7.
func (g *GatewayService) snapshot(ctx context.Context) ([]policy.Rule, bool) {
	snapCtx, cancel := context.WithTimeout(ctx, g.policyTimeout)
	defer cancel()

	snap, err := g.policyStore.GetSnapshot(snapCtx)
	if err == nil {
		g.snapMu.Lock()
		g.lastSnapshot = snap
		g.haveSnapshot = true
		g.snapMu.Unlock()
		return snap, false
	}

	g.logger.Error("policy store unavailable; serving last-known snapshot", "error", err)
	g.snapMu.Lock()
	defer g.snapMu.Unlock()
	if g.haveSnapshot {
		return g.lastSnapshot, true
	}
	return nil, true
}

func statusForVerdict(v decision.Verdict) string {
	switch v {
	case decision.Allow:
		return "allowed"
	case decision.Deny:
		return "denied"
	case decision.Pending:
		return "pending_approval"
	default:
		return "unknown"
	}
}

func toAuditRules(matched []risk.MatchedRule) []audit.MatchedRule {
	out := make([]audit.MatchedRule, 0, len(matched))
	for _, m := range matched {
		out = append(out, audit.MatchedRule{
			RuleID:            m.RuleID,
			Name:              m.Name,
			RiskScoreModifier: m.RiskScoreModifier,
		})
	}
	return out
}

// digestResponse hashes a forwarder response for the audit trail. Per
// spec.md §9's open question on forwarded-response durability, Sentinel
// defaults to a digest rather than storing the full body.
func digestResponse(v interface{}) string {
	if v == nil {
		return ""
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%v", v)))
	return hex.EncodeToString(sum[:])
}

// monotonicIDSource generates ULIDs for request_id per SPEC_FULL.md §3:
// monotonic and sortable, giving the audit trail a natural ordering.
// ulid.MonotonicEntropy is not safe for concurrent use on its own, so
// access is serialized behind a mutex -- the same single-writer discipline
// the breaker.Gate and policy snapshot pointer use elsewhere in this module.
type monotonicIDSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newMonotonicIDSource() *monotonicIDSource {
	return &monotonicIDSource{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (m *monotonicIDSource) New() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
}
