// Package auth issues and verifies the service's own session tokens and
// carries the verified claims through the request context.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid is returned when a session token fails signature or
	// structural validation.
	ErrTokenInvalid = errors.New("invalid session token")

	// ErrTokenExpired is returned when a session token is past its expiry.
	ErrTokenExpired = errors.New("session token expired")
)

// DefaultTokenTTL is the session lifetime used when none is configured.
const DefaultTokenTTL = 30 * time.Minute

// SessionClaims is the claim bundle embedded in issued session tokens.
// Roles carries flattened role names only; the scope/client distinction is
// rebuilt from the permission tables when needed (roles.AssertionsFromNames).
type SessionClaims struct {
	Username  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Roles     []string `json:"roles"`
	UserID    string   `json:"user_id"`

	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies session tokens with a process-wide HS256
// secret. The secret lives for the process lifetime; rotating it invalidates
// all outstanding sessions.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer. A zero ttl selects DefaultTokenTTL.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// TTL returns the configured session lifetime.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// Issue stamps the claims with issued-at/expiry and signs them. The caller
// provides everything except the timestamps; claims are never mutated after
// issuance, a new token is required to change them.
func (i *TokenIssuer) Issue(claims SessionClaims) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded claims
// unchanged. Expired tokens fail with ErrTokenExpired; everything else
// (bad signature, wrong algorithm, missing expiry, garbage) fails with
// ErrTokenInvalid.
func (i *TokenIssuer) Verify(tokenString string) (*SessionClaims, error) {
	claims := new(SessionClaims)
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
