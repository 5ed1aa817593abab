// Package middleware provides the chi middlewares guarding the API surface:
// bearer-token authentication plus explicit role and permission guards.
package middleware

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/Ignatius32/keycloak-auth-template/internal/auth"
)

// TokenVerifier validates a session token and returns its claims.
// *auth.TokenIssuer satisfies this.
type TokenVerifier interface {
	Verify(token string) (*auth.SessionClaims, error)
}

// Authenticator returns a middleware that authenticates requests via the
// Authorization bearer token. Verified claims land in the request context;
// missing, malformed, expired, and tampered tokens all answer 401 without
// distinguishing the failure to the client.
func Authenticator(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				log.Printf("WARNING: rejected session token for %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			ctx := auth.ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"detail": detail}); err != nil {
		log.Printf("ERROR: encoding error response: %v", err)
	}
}
