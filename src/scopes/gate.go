package scopes

import (
	"fmt"
)

// InsufficientScopeError reports a failed permission check, carrying the
// scope that was required and the scopes the actor actually holds.
type InsufficientScopeError struct {
	Required string
	Provided []string
}

func (e *InsufficientScopeError) Error() string {
	return fmt.Sprintf("insufficient scope: required %q", e.Required)
}

// HasPermission reports whether the actor's granted scopes satisfy the
// required scope. Non-throwing form of RequirePermission.
func HasPermission(granted []string, required string) bool {
	return Grants(ParseAll(granted), Parse(required))
}

// RequirePermission is the guard-clause form used by privileged
// operations: nil on success, *InsufficientScopeError on failure.
func RequirePermission(granted []string, required string) error {
	if HasPermission(granted, required) {
		return nil
	}
	return &InsufficientScopeError{Required: required, Provided: granted}
}
