// Package config provides configuration types for Sentinel Gate.
//
// Configuration is env-var driven (spec.md §6's fixed configuration
// surface) rather than the teacher's YAML-file model: Sentinel is a
// governance gateway meant to run as one of many identically-configured
// instances behind a shared counter/cache store, so a flat environment is
// the natural fit and matches how the rest of the pack's services
// (container-first, twelve-factor) are configured.
package config

import "time"

// GatewayConfig is the top-level configuration for the Sentinel gateway.
type GatewayConfig struct {
	// Server configures the HTTP listener. Not part of spec.md §6's
	// env-var table (which only names decision/rate-limit/store knobs) but
	// carried as ambient configuration every HTTP service needs.
	Server ServerConfig `mapstructure:",squash"`

	// Mode is the initial gateway mode: OBSERVE or ENFORCE.
	Mode string `mapstructure:"mode" validate:"required,oneof=OBSERVE ENFORCE"`

	// ApprovalThreshold and BlockThreshold are the decision engine's
	// threshold table (spec.md §4.7). BlockThreshold must exceed
	// ApprovalThreshold.
	ApprovalThreshold float64 `mapstructure:"approval_threshold" validate:"gte=0,lte=1"`
	BlockThreshold    float64 `mapstructure:"block_threshold" validate:"gte=0,lte=1"`

	// RateLimitRequests and RateLimitWindowSeconds define the default
	// per-agent rate limit (spec.md §4.2); an Identity's RateLimitOverride
	// takes precedence per agent.
	RateLimitRequests      int `mapstructure:"rate_limit_requests" validate:"gt=0"`
	RateLimitWindowSeconds int `mapstructure:"rate_limit_window_seconds" validate:"gt=0"`

	// ApprovalWebhookURL is the external decider endpoint the Approval
	// Coordinator POSTs to on a PENDING decision. Empty disables the
	// webhook notifier (a no-op Notifier is wired instead).
	ApprovalWebhookURL string `mapstructure:"approval_webhook_url" validate:"omitempty,url"`

	// ApprovalExpirySeconds is how long a PENDING record lives before the
	// sweeper transitions it to EXPIRED. Defaults to 86400 (spec.md §6).
	ApprovalExpirySeconds int `mapstructure:"approval_expiry_seconds" validate:"gt=0"`

	// CounterStoreURL is the connection string for the shared counter/cache
	// store (rate limits, mode, policy cache pub/sub). Empty selects the
	// in-memory adapter (single-instance deployment).
	CounterStoreURL string `mapstructure:"counter_store_url"`

	// AuditStoreURL is the connection string for the durable rules/
	// approvals/audit store. Empty selects the in-memory adapter.
	AuditStoreURL string `mapstructure:"audit_store_url"`

	// Auth configures the bootstrap API keys/identities. Optional; it is the
	// only source of identities and keys (there is no admin API for them).
	Auth AuthConfig `mapstructure:"auth"`

	// DevMode enables permissive startup defaults (a seeded dev identity,
	// dev API key, and allow-all rule) so the gateway runs with zero
	// configuration.
	DevMode bool `mapstructure:"dev_mode"`

	// PolicySeedPath optionally points at a YAML file of policy rules
	// applied at startup and hot-reloaded on change. Empty disables seeding
	// entirely; rules are then managed purely through the admin API.
	PolicySeedPath string `mapstructure:"policy_seed_path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8080".
	HTTPAddr string `mapstructure:"http_addr" validate:"omitempty,hostname_port"`
	// LogLevel sets the minimum log level: debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// AuthConfig configures bootstrap identities and API keys.
type AuthConfig struct {
	Identities []IdentityConfig `mapstructure:"identities" validate:"omitempty,dive"`
	APIKeys    []APIKeyConfig   `mapstructure:"api_keys" validate:"omitempty,dive"`
}

// IdentityConfig defines a bootstrap identity.
type IdentityConfig struct {
	ID      string   `mapstructure:"id" validate:"required"`
	Name    string   `mapstructure:"name" validate:"required"`
	Scopes  []string `mapstructure:"scopes"`
	Roles   []string `mapstructure:"roles"`
	Enabled bool     `mapstructure:"enabled"`
}

// APIKeyConfig defines a bootstrap API key mapped to an identity.
type APIKeyConfig struct {
	// KeyHash is the SHA-256 hex hash of the raw key (see auth.HashKey).
	KeyHash string `mapstructure:"key_hash" validate:"required"`
	// IdentityID references IdentityConfig.ID.
	IdentityID string `mapstructure:"identity_id" validate:"required"`
}

// SetDevDefaults applies permissive defaults for development mode, seeding
// a dev identity, a dev API key ("sntl_dev_key"), and relying on the
// caller to seed an allow-all rule into the policy store (config has no
// policy-rule surface of its own -- rules are pure runtime state per
// spec.md §4.3, not bootstrap configuration).
func (c *GatewayConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if len(c.Auth.Identities) == 0 {
		c.Auth.Identities = []IdentityConfig{
			{ID: "dev-agent", Name: "Development Agent", Enabled: true, Roles: []string{"admin"}},
		}
	}
	if len(c.Auth.APIKeys) == 0 {
		// SHA-256 of "sntl_dev_key".
		c.Auth.APIKeys = []APIKeyConfig{
			{KeyHash: "b4d3dcff6e7bfcbecb86daefd2ce2b25b9ed958ddfa74b55aaa6b380c518fa5c", IdentityID: "dev-agent"},
		}
	}
}

// SetDefaults applies sensible default values per spec.md §4.7/§4.8's
// documented constants and §6's configuration table.
func (c *GatewayConfig) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Mode == "" {
		c.Mode = "ENFORCE"
	}
	if c.ApprovalThreshold == 0 {
		c.ApprovalThreshold = 0.8
	}
	if c.BlockThreshold == 0 {
		c.BlockThreshold = 1.0
	}
	if c.RateLimitRequests == 0 {
		c.RateLimitRequests = 100
	}
	if c.RateLimitWindowSeconds == 0 {
		c.RateLimitWindowSeconds = 60
	}
	if c.ApprovalExpirySeconds == 0 {
		c.ApprovalExpirySeconds = 86400
	}
}

// RateLimitWindow returns RateLimitWindowSeconds as a time.Duration.
func (c *GatewayConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// ApprovalExpiry returns ApprovalExpirySeconds as a time.Duration.
func (c *GatewayConfig) ApprovalExpiry() time.Duration {
	return time.Duration(c.ApprovalExpirySeconds) * time.Second
}
