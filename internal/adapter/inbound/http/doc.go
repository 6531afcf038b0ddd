// Package http provides the inbound HTTP transport for the gateway: a
// fixed REST surface over the evaluation pipeline, policy administration,
// approval callbacks, and the audit query endpoint.
//
// # Usage
//
// Build a GatewayHandler from the application-layer services, then wrap it
// in an HTTPTransport:
//
//	handler := http.NewGatewayHandler(gateway, policies, gate, coordinator, auditStore, policyStore, logger)
//	transport := http.NewHTTPTransport(handler,
//	    http.WithAddr(":8080"),
//	    http.WithTLS("cert.pem", "key.pem"),
//	    http.WithAllowedOrigins([]string{"https://example.com"}),
//	    http.WithHealthChecker(healthChecker),
//	    http.WithMetrics(gatewayMetrics),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	POST   /api/v1/gateway/evaluate              - run the decision pipeline
//	GET    /api/v1/gateway/mode                   - read ENFORCE/OBSERVE
//	PUT    /api/v1/gateway/mode                   - set ENFORCE/OBSERVE
//	GET    /api/v1/policies                       - list policy rules
//	POST   /api/v1/policies                       - create a policy rule
//	GET    /api/v1/policies/{rule_id}              - get a policy rule
//	DELETE /api/v1/policies/{rule_id}              - delete a policy rule
//	GET    /api/v1/approvals/{approval_id}          - get approval state
//	POST   /api/v1/approvals/{approval_id}/callback - resolve an approval
//	GET    /api/v1/audit/logs                     - query the audit trail
//	GET    /admin/ws/policy-events                - stream policy-store changes (admin role)
//	GET    /health                                - liveness/readiness probe
//	GET    /metrics                               - Prometheus exposition
//
// # Authentication
//
// Every /api/v1/ route requires "Authorization: Bearer sntl_<key>"; /health
// and /metrics are unauthenticated. APIKeyMiddleware validates the bearer
// token against the auth.APIKeyService wired via SetAuthService before any
// route handler runs.
//
// # Middleware Chain
//
// Requests pass through middleware in this order:
//
//  1. MetricsMiddleware  - records request_duration_seconds by matched route
//  2. RequestIDMiddleware - assigns/propagates X-Request-ID, enriches the logger
//  3. RealIPMiddleware    - extracts client IP from proxy headers
//  4. DNSRebindingProtection - validates the Origin header
//  5. APIKeyMiddleware   - applied only to the /api/v1/ subtree
package http
