// Package config provides configuration loading for Sentinel Gate.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper for the gateway's flat environment-variable
// surface (spec.md §6): no config file, no nested-key replacer, no
// SENTINEL_GATE_ prefix -- every key is bound under its literal spec name
// (MODE, APPROVAL_THRESHOLD, ...) so operators can configure the gateway
// with exactly the env vars spec.md documents.
func InitViper() {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnvKeys()
}

// bindEnvKeys binds the fixed env-var surface from spec.md §6, plus the
// ambient server/log knobs the distilled spec leaves unstated.
func bindEnvKeys() {
	_ = viper.BindEnv("mode", "MODE")
	_ = viper.BindEnv("approval_threshold", "APPROVAL_THRESHOLD")
	_ = viper.BindEnv("block_threshold", "BLOCK_THRESHOLD")
	_ = viper.BindEnv("rate_limit_requests", "RATE_LIMIT_REQUESTS")
	_ = viper.BindEnv("rate_limit_window_seconds", "RATE_LIMIT_WINDOW_SECONDS")
	_ = viper.BindEnv("approval_webhook_url", "APPROVAL_WEBHOOK_URL")
	_ = viper.BindEnv("approval_expiry_seconds", "APPROVAL_EXPIRY_SECONDS")
	_ = viper.BindEnv("counter_store_url", "COUNTER_STORE_URL")
	_ = viper.BindEnv("audit_store_url", "AUDIT_STORE_URL")

	_ = viper.BindEnv("http_addr", "SERVER_ADDR")
	_ = viper.BindEnv("log_level", "LOG_LEVEL")
	_ = viper.BindEnv("dev_mode", "DEV_MODE")
	_ = viper.BindEnv("policy_seed_path", "POLICY_SEED_PATH")

	// Auth identities/api_keys have no env-var form (arrays); callers seed
	// them via SetDevDefaults.
}

// LoadConfig reads the process environment into a GatewayConfig, applies
// defaults, and validates it. Callers that need to override DevMode from a
// CLI flag before validation should use LoadConfigRaw instead.
func LoadConfig() (*GatewayConfig, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the process environment into a GatewayConfig and
// applies defaults, but does NOT apply dev defaults or validate. Use this
// when a CLI flag may override DevMode before validation.
func LoadConfigRaw() (*GatewayConfig, error) {
	var cfg GatewayConfig
	cfg.Server.HTTPAddr = viper.GetString("http_addr")
	cfg.Server.LogLevel = viper.GetString("log_level")
	cfg.Mode = viper.GetString("mode")
	cfg.ApprovalThreshold = viper.GetFloat64("approval_threshold")
	cfg.BlockThreshold = viper.GetFloat64("block_threshold")
	cfg.RateLimitRequests = viper.GetInt("rate_limit_requests")
	cfg.RateLimitWindowSeconds = viper.GetInt("rate_limit_window_seconds")
	cfg.ApprovalWebhookURL = viper.GetString("approval_webhook_url")
	cfg.ApprovalExpirySeconds = viper.GetInt("approval_expiry_seconds")
	cfg.CounterStoreURL = viper.GetString("counter_store_url")
	cfg.AuditStoreURL = viper.GetString("audit_store_url")
	cfg.DevMode = viper.GetBool("dev_mode")
	cfg.PolicySeedPath = viper.GetString("policy_seed_path")

	cfg.SetDefaults()
	return &cfg, nil
}
