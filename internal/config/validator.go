package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the GatewayConfig using struct tags and cross-field
// rules specific to the decision engine's threshold table (spec.md §4.7).
func (c *GatewayConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateThresholdOrdering(); err != nil {
		return err
	}
	if err := c.validateIdentityReferences(); err != nil {
		return err
	}

	return nil
}

// validateThresholdOrdering enforces spec.md §4.7's invariant that
// approval_threshold must be strictly less than block_threshold -- a
// decision engine where PENDING's floor meets or exceeds DENY's floor can
// never actually classify anything as PENDING.
func (c *GatewayConfig) validateThresholdOrdering() error {
	if c.ApprovalThreshold >= c.BlockThreshold {
		return fmt.Errorf("approval_threshold (%.3f) must be less than block_threshold (%.3f)",
			c.ApprovalThreshold, c.BlockThreshold)
	}
	return nil
}

// validateIdentityReferences ensures every bootstrap API key references a
// known bootstrap identity.
func (c *GatewayConfig) validateIdentityReferences() error {
	known := make(map[string]struct{}, len(c.Auth.Identities))
	for _, identity := range c.Auth.Identities {
		known[identity.ID] = struct{}{}
	}
	for i, key := range c.Auth.APIKeys {
		if _, ok := known[key.IdentityID]; !ok {
			return fmt.Errorf("auth.api_keys[%d]: references unknown identity_id: %s", i, key.IdentityID)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
