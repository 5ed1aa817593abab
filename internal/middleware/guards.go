package middleware

import (
	"net/http"
	"slices"

	"github.com/Ignatius32/keycloak-auth-template/internal/auth"
	"github.com/Ignatius32/keycloak-auth-template/internal/roles"
)

// RequireRole returns a guard that rejects requests whose session carries
// none of the named roles. Runs after Authenticator.
func RequireRole(names ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			granted := false
			for _, name := range names {
				if slices.Contains(claims.Roles, name) {
					granted = true
					break
				}
			}
			if !granted {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission returns a guard that rejects requests whose session
// roles do not grant the named permission. Permissions are derived from the
// role names on the session token through the same table the role endpoints
// use.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			effective := roles.Compute(roles.AssertionsFromNames(claims.Roles))
			if !effective.HasPermission(permission) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
