// Package http provides the HTTP transport adapter for the gateway.
package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/auth"
)

// requestIDContextKey is the type for the request ID context key.
type requestIDContextKey struct{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = requestIDContextKey{}

// loggerContextKey is the context key for the enriched per-request logger.
type loggerContextKey struct{}

// LoggerKey is the context key for the enriched logger.
var LoggerKey = loggerContextKey{}

// bearerKeyContextKey is the context key for the raw, validated bearer
// token, stashed by APIKeyMiddleware for handlers that need to pass it
// through to GatewayService.Evaluate.
type bearerKeyContextKey struct{}

// identityContextKey is the context key for the authenticated identity.
type identityContextKey struct{}

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// DNSRebindingProtection validates Origin header against an allowlist.
// If allowedOrigins is empty, all requests with an Origin header are blocked (local-only mode).
// Requests without an Origin header are allowed (same-origin or non-browser).
func DNSRebindingProtection(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[origin]; !ok {
				http.Error(w, "Forbidden: origin not allowed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewAPIKeyMiddleware builds the bearer-auth gate for spec.md §6's
// "Authorization required except /health, /metrics" rule: absence or
// mismatch of a well-formed `sntl_`-prefixed key returns 401 before the
// request reaches any route handler. The validated raw key and identity are
// stashed in context for handlers/GatewayService to use; APIKeyMiddleware
// itself is set once per process via SetAuthService below so route
// registration in handler.go does not need to thread the dependency
// through every handler signature.
func NewAPIKeyMiddleware(svc *auth.APIKeyService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			rawKey, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || rawKey == "" {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing or malformed Authorization header")
				return
			}

			identity, err := svc.Validate(r.Context(), rawKey)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), bearerKeyContextKey{}, rawKey)
			ctx = context.WithValue(ctx, identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyMiddleware is the process-wide bearer-auth gate, set once at
// startup via SetAuthService. Handler registration (handler.go) references
// this package-level value rather than threading an *auth.APIKeyService
// through every route, mirroring the teacher's package-level middleware
// functions that close over request-scoped context keys only.
var apiKeyAuthService *auth.APIKeyService

// SetAuthService wires the API key service APIKeyMiddleware validates
// against. Must be called once during startup before Routes() is served.
func SetAuthService(svc *auth.APIKeyService) {
	apiKeyAuthService = svc
}

// APIKeyMiddleware validates the bearer token using the service configured
// via SetAuthService.
func APIKeyMiddleware(next http.Handler) http.Handler {
	return NewAPIKeyMiddleware(apiKeyAuthService)(next)
}

// identityFromContext returns the authenticated identity stashed by
// APIKeyMiddleware, if any.
func identityFromContext(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityContextKey{}).(*auth.Identity)
	return id
}

// realIPContextKey is the context key for the client's extracted real IP.
type realIPContextKey struct{}

// RealIPMiddleware extracts the client's real IP address for rate limiting.
// It checks X-Forwarded-For and X-Real-IP headers (for reverse proxy support),
// falling back to r.RemoteAddr if no proxy headers are present.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractRealIP(r)
		ctx := context.WithValue(r.Context(), realIPContextKey{}, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractRealIP extracts the client's real IP address from the request.
func extractRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
