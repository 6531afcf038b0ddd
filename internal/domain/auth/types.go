// Package auth contains the domain types and logic for authentication.
package auth

import (
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
)

// Role represents a user role for authorization purposes.
type Role string

const (
	// RoleAdmin has full access to all operations.
	RoleAdmin Role = "admin"
	// RoleUser has standard access to most operations.
	RoleUser Role = "user"
	// RoleReadOnly has read-only access to operations.
	RoleReadOnly Role = "read-only"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleReadOnly:
		return true
	default:
		return false
	}
}

// Identity represents an authenticated agent, matching spec.md §3's
// Agent/Key model: {key, agent_id, enabled, scopes, rate_limit_override?}.
type Identity struct {
	// ID is the unique identifier for this identity (the agent_id).
	ID string
	// Name is the display name for this identity.
	Name string
	// Roles are the roles assigned to this identity.
	Roles []Role
	// Enabled indicates whether this agent may authenticate at all. A
	// disabled agent returns UNAUTHENTICATED even with a well-formed key.
	Enabled bool
	// Scopes are the action types this agent is permitted to request.
	// An empty set means no scope restriction beyond policy evaluation.
	Scopes []string
	// RateLimitOverride, when non-nil, replaces the gateway's default rate
	// limit config for this agent.
	RateLimitOverride *ratelimit.RateLimitConfig
}

// HasScope reports whether the identity may request actionType: true when
// Scopes is empty or lists actionType, false otherwise.
func (i *Identity) HasScope(actionType string) bool {
	if len(i.Scopes) == 0 {
		return true
	}
	for _, s := range i.Scopes {
		if s == actionType {
			return true
		}
	}
	return false
}

// HasRole returns true if the identity has the specified role.
func (i *Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole returns true if the identity has any of the specified roles.
func (i *Identity) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// APIKey represents an API key for authentication.
type APIKey struct {
	// Key is the hashed key value (SHA-256 hex or Argon2id PHC format).
	Key string
	// IdentityID maps this key to an Identity.
	IdentityID string
	// Name is a human-readable label for this key.
	Name string
	// CreatedAt is when the key was created (UTC).
	CreatedAt time.Time
	// ExpiresAt is when the key expires (nil = never expires).
	ExpiresAt *time.Time
	// Revoked indicates if the key has been revoked.
	Revoked bool
}

// IsExpired returns true if the API key has expired.
// A key with nil ExpiresAt never expires.
func (k *APIKey) IsExpired() bool {
	if k.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*k.ExpiresAt)
}
