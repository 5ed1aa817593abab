package auth

import "context"

type claimsContextKey struct{}

var defaultClaimsContextKey = claimsContextKey{}

// ContextWithClaims stores verified session claims on the request context.
func ContextWithClaims(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, defaultClaimsContextKey, claims)
}

// ClaimsFromContext returns the session claims stored on the request context.
func ClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(defaultClaimsContextKey).(*SessionClaims)
	return claims, ok
}
