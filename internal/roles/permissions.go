package roles

import "unicode"

// tableKey identifies a permission table entry. The table is client-agnostic
// for client-scoped roles: an entry applies to that role name under any
// client application.
type tableKey struct {
	Name  string
	Scope Scope
}

// rolePermissions is the hand-authored role→permission mapping. It is the
// single source of truth for what each role grants; extraction and
// aggregation never need to change when entries are added here.
var rolePermissions = map[tableKey][]string{
	{Name: "user", Scope: ScopeRealm}: {
		"profile:read",
		"profile:update",
		"preferences:read",
		"preferences:update",
	},
	{Name: "admin", Scope: ScopeRealm}: {
		"profile:read",
		"profile:update",
		"preferences:read",
		"preferences:update",
		"users:read",
		"users:manage",
		"system:admin",
	},
	{Name: "moderator", Scope: ScopeRealm}: {
		"profile:read",
		"profile:update",
		"preferences:read",
		"preferences:update",
		"content:moderate",
		"users:read",
	},

	{Name: "dashboard-user", Scope: ScopeClient}: {
		"dashboard:read",
		"analytics:view",
	},
	{Name: "dashboard-admin", Scope: ScopeClient}: {
		"dashboard:read",
		"dashboard:manage",
		"analytics:view",
		"analytics:export",
	},
	{Name: "api-consumer", Scope: ScopeClient}: {
		"api:read",
		"api:write",
	},
}

var roleDescriptions = map[tableKey]string{
	{Name: "user", Scope: ScopeRealm}:             "Standard user with basic access",
	{Name: "admin", Scope: ScopeRealm}:            "System administrator with full access",
	{Name: "moderator", Scope: ScopeRealm}:        "Content moderator with limited admin access",
	{Name: "dashboard-user", Scope: ScopeClient}:  "Dashboard user with read access",
	{Name: "dashboard-admin", Scope: ScopeClient}: "Dashboard administrator",
	{Name: "api-consumer", Scope: ScopeClient}:    "API access for external integrations",
}

// Lookup resolves a role assertion to its permissions and description.
// A role with no table entry yields an empty permission set and a generated
// description; it is never an error.
func Lookup(a RoleAssertion) (permissions []string, description string) {
	key := tableKey{Name: a.Name, Scope: a.Scope}

	permissions = append([]string(nil), rolePermissions[key]...)
	if permissions == nil {
		permissions = []string{}
	}

	description, ok := roleDescriptions[key]
	if !ok {
		description = titleCase(a.Name) + " role"
	}
	return permissions, description
}

// AssertionsFromNames rebuilds role assertions from the flattened name list
// carried in a session token. The scope/client distinction is lost at the
// token boundary, so each name is resolved against the realm table first and
// the client table second; names in neither table default to realm scope
// with no permissions.
func AssertionsFromNames(names []string) []RoleAssertion {
	assertions := make([]RoleAssertion, 0, len(names))
	for _, name := range names {
		scope := ScopeRealm
		if _, ok := rolePermissions[tableKey{Name: name, Scope: ScopeRealm}]; !ok {
			if _, ok := rolePermissions[tableKey{Name: name, Scope: ScopeClient}]; ok {
				scope = ScopeClient
			}
		}
		assertions = append(assertions, RoleAssertion{Name: name, Scope: scope})
	}
	return assertions
}

// titleCase upper-cases the first letter of every word, matching the
// generated descriptions the frontend already expects ("Analyst role",
// "Dashboard-Admin role").
func titleCase(s string) string {
	out := []rune(s)
	prevLetter := false
	for i, r := range out {
		if unicode.IsLetter(r) {
			if !prevLetter {
				out[i] = unicode.ToUpper(r)
			} else {
				out[i] = unicode.ToLower(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
	}
	return string(out)
}
