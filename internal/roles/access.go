package roles

import "sort"

// AccessLevels derives the fixed set of boolean UI-gating flags from a
// principal's roles and unioned permissions. Every call site goes through
// this one predicate table; there is deliberately no second implementation
// for flattened role names (see AssertionsFromNames).
func AccessLevels(assertions []RoleAssertion, permissions map[string]struct{}) map[string]bool {
	hasPerm := func(p string) bool {
		_, ok := permissions[p]
		return ok
	}
	hasRole := func(names ...string) bool {
		for _, a := range assertions {
			for _, name := range names {
				if a.Name == name {
					return true
				}
			}
		}
		return false
	}
	hasRealmRole := func(name string) bool {
		for _, a := range assertions {
			if a.Name == name && a.Scope == ScopeRealm {
				return true
			}
		}
		return false
	}

	return map[string]bool{
		"is_admin":         hasRealmRole("admin"),
		"is_moderator":     hasRole("moderator"),
		"is_standard_user": hasRole("user"),

		"can_view_admin":     hasPerm("system:admin"),
		"can_manage_users":   hasPerm("users:manage"),
		"can_moderate":       hasPerm("content:moderate") || hasRole("admin"),
		"can_view_analytics": hasPerm("analytics:view") || hasRole("analyst", "dashboard-admin"),
		"can_export_data":    hasPerm("analytics:export") || hasRole("dashboard-admin"),
		"can_access_api":     hasPerm("api:read") || hasPerm("api:write") || hasRole("api-consumer", "developer"),
	}
}

// Compute is the canonical derivation of a principal's effective
// permissions: per-role lookups, the de-duplicated permission union, and the
// access-level flags. Pure function; safe to call concurrently.
func Compute(assertions []RoleAssertion) EffectivePermissions {
	permSet := make(map[string]struct{})
	details := make([]RoleDetail, 0, len(assertions))

	for _, a := range assertions {
		perms, description := Lookup(a)
		for _, p := range perms {
			permSet[p] = struct{}{}
		}
		details = append(details, RoleDetail{
			Name:        a.Name,
			Type:        string(a.Scope),
			ClientID:    a.ClientID,
			Permissions: perms,
			Description: description,
		})
	}

	permissions := make([]string, 0, len(permSet))
	for p := range permSet {
		permissions = append(permissions, p)
	}
	sort.Strings(permissions)

	return EffectivePermissions{
		Roles:        assertions,
		RoleDetails:  details,
		Permissions:  permissions,
		AccessLevels: AccessLevels(assertions, permSet),
	}
}
