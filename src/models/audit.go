package models

import (
	"time"
)

// Audit action names recorded by the admin surface
const (
	ActionSetup            = "setup"
	ActionKeyCreated       = "key_created"
	ActionKeyRevoked       = "key_revoked"
	ActionAdminKeyRevoked  = "admin_key_revoked"
	ActionBulkKeysRevoked  = "bulk_keys_revoked"
	ActionKeyRotated       = "key_rotated"
	ActionCleanupExecuted  = "cleanup_executed"
	ActionAdminLogin       = "admin_login"
	ActionAdminLoginFailed = "admin_login_failed"
)

// criticalActions classifies actions that receive the extra "critical"
// audit index for heightened visibility.
var criticalActions = map[string]bool{
	ActionSetup:           true,
	ActionAdminKeyRevoked: true,
	ActionBulkKeysRevoked: true,
	ActionKeyRotated:      true,
	ActionCleanupExecuted: true,
}

// IsCriticalAction reports whether an action is indexed under the
// critical audit dimension.
func IsCriticalAction(action string) bool {
	return criticalActions[action]
}

// AuditEntry is an immutable administrative audit record. Entries are
// written once and reachable through secondary indexes by actor, action,
// calendar date and (for critical actions) the critical family.
type AuditEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	AdminID   string            `json:"admin_id"`
	Action    string            `json:"action"`
	Details   map[string]string `json:"details,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
}
