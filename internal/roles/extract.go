package roles

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrMalformedClaims is returned when the introspection payload cannot be
// decoded into the expected realm_access/resource_access shape at all.
// Missing sections are not an error; they simply contribute no roles.
var ErrMalformedClaims = errors.New("malformed role claims")

// Keycloak materializes bookkeeping roles on every token. They are never
// surfaced as RoleAssertions.
const reservedRealmRolePrefix = "default-roles-"

var reservedRealmRoles = map[string]struct{}{
	"offline_access":    {},
	"uma_authorization": {},
}

var reservedClientRoles = map[string]struct{}{
	"uma_protection": {},
}

type roleList struct {
	Roles []string `mapstructure:"roles"`
}

type accessClaims struct {
	RealmAccess    *roleList           `mapstructure:"realm_access"`
	ResourceAccess map[string]roleList `mapstructure:"resource_access"`
}

// Extract parses a raw token-introspection payload into role assertions:
// realm roles first, then client roles grouped per client. Reserved provider
// roles are dropped. Duplicates are preserved; de-duplication happens only
// when permissions are unioned.
func Extract(claims map[string]any) ([]RoleAssertion, error) {
	var payload accessClaims
	if err := mapstructure.Decode(claims, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedClaims, err)
	}

	assertions := []RoleAssertion{}

	if payload.RealmAccess != nil {
		for _, name := range payload.RealmAccess.Roles {
			if isReservedRealmRole(name) {
				continue
			}
			assertions = append(assertions, RoleAssertion{Name: name, Scope: ScopeRealm})
		}
	}

	for clientID, access := range payload.ResourceAccess {
		for _, name := range access.Roles {
			if _, reserved := reservedClientRoles[name]; reserved {
				continue
			}
			assertions = append(assertions, RoleAssertion{Name: name, Scope: ScopeClient, ClientID: clientID})
		}
	}

	return assertions, nil
}

func isReservedRealmRole(name string) bool {
	if strings.HasPrefix(name, reservedRealmRolePrefix) {
		return true
	}
	_, reserved := reservedRealmRoles[name]
	return reserved
}
