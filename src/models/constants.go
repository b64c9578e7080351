package models

// AdminScopeNamespace is the reserved first segment for administrative
// permission scopes. Keys granted any scope in this namespace are
// tracked in the admin key index.
const AdminScopeNamespace = "admin"

// Scopes guarding the administrative API routes
const (
	ScopeKeysRead      = "admin:keys:read"
	ScopeKeysCreate    = "admin:keys:create"
	ScopeKeysRevoke    = "admin:keys:revoke"
	ScopeKeysRotate    = "admin:keys:rotate"
	ScopeAuditRead     = "admin:audit:read"
	ScopeSystemCleanup = "admin:system:cleanup"
)

// AllAdminScopes returns the full administrative scope set, granted to
// the bootstrap key created during setup.
func AllAdminScopes() []string {
	return []string{
		ScopeKeysRead,
		ScopeKeysCreate,
		ScopeKeysRevoke,
		ScopeKeysRotate,
		ScopeAuditRead,
		ScopeSystemCleanup,
	}
}
