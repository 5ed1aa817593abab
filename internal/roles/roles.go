// Package roles transforms Keycloak role claims into the flat permission
// model consumed by the frontend: claim extraction, the role→permission
// table, and the derived access-level flags.
package roles

// Scope identifies where a role was granted.
type Scope string

const (
	// ScopeRealm marks a role granted at the realm (tenant) level.
	ScopeRealm Scope = "realm"
	// ScopeClient marks a role granted by a specific client application.
	ScopeClient Scope = "client"
)

// RoleAssertion is a single role granted to the authenticated principal.
// ClientID is set only for client-scoped roles.
type RoleAssertion struct {
	Name     string
	Scope    Scope
	ClientID string
}

// RoleDetail is the frontend-facing view of one role with its mapped
// permissions and description.
type RoleDetail struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	ClientID    string   `json:"client_id,omitempty"`
	Permissions []string `json:"permissions"`
	Description string   `json:"description"`
}

// EffectivePermissions is the per-request derivation of a principal's roles:
// the union of mapped permissions plus the boolean access-level flags used
// for UI gating. It is computed fresh for every request and never cached.
type EffectivePermissions struct {
	Roles        []RoleAssertion
	RoleDetails  []RoleDetail
	Permissions  []string
	AccessLevels map[string]bool
}

// HasPermission reports whether the permission is in the effective set.
func (e EffectivePermissions) HasPermission(permission string) bool {
	for _, p := range e.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Names returns the flattened role names in assertion order.
func Names(assertions []RoleAssertion) []string {
	names := make([]string, 0, len(assertions))
	for _, a := range assertions {
		names = append(names, a.Name)
	}
	return names
}
