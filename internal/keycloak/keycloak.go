// Package keycloak talks to the external identity provider: the OpenID
// Connect token/introspection endpoints for credential checks and the Admin
// REST API for account management. Keycloak remains the source of truth for
// credentials; this service never stores passwords.
package keycloak

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials is returned when Keycloak rejects a
	// username/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnavailable is returned when Keycloak cannot be reached or answers
	// with a server error.
	ErrUnavailable = errors.New("identity provider unavailable")

	// ErrUserNotFound is returned by admin lookups for unknown user IDs.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when account creation collides with an
	// existing username or email.
	ErrUserExists = errors.New("user already exists")
)

// UserInfo is the subset of the OIDC userinfo response this service uses.
type UserInfo struct {
	Subject   string `json:"sub"`
	Username  string `json:"preferred_username"`
	Email     string `json:"email"`
	FirstName string `json:"given_name"`
	LastName  string `json:"family_name"`
}

// AuthenticatedUser is the result of a successful credential check: the
// userinfo profile plus the raw introspection payload the role extractor
// consumes.
type AuthenticatedUser struct {
	UserInfo
	Claims map[string]any
}

// NewUser describes an account to create. Role defaults to "user" at the
// call site when empty.
type NewUser struct {
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string
	Role      string
}

// User is the admin-API user representation.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Enabled       bool   `json:"enabled"`
	EmailVerified bool   `json:"emailVerified"`
}

// IdentityProvider is the boundary contract the API surface depends on.
// Handlers receive an implementation by constructor injection; there are no
// package-level client singletons.
type IdentityProvider interface {
	// Authenticate checks the credential pair and returns the user's profile
	// and raw role claims. ErrInvalidCredentials on rejection,
	// ErrUnavailable when the provider cannot be reached.
	Authenticate(ctx context.Context, username, password string) (*AuthenticatedUser, error)

	// VerifyPassword checks a credential pair without fetching profile or
	// claims. Used by the change-password flow.
	VerifyPassword(ctx context.Context, username, password string) error

	// Introspect returns the raw claims for an access token.
	Introspect(ctx context.Context, accessToken string) (map[string]any, error)

	// CreateUser creates an unverified account with a VERIFY_EMAIL required
	// action and returns the new user's ID.
	CreateUser(ctx context.Context, user NewUser) (string, error)

	// AssignRealmRole grants a realm role to a user.
	AssignRealmRole(ctx context.Context, userID, roleName string) error

	// SendVerifyEmail asks Keycloak to send the verification mail.
	// Best-effort: callers must not fail registration on error.
	SendVerifyEmail(ctx context.Context, userID string) error

	// FindUsersByEmail returns users matching the email exactly. An empty
	// result is normal, not an error.
	FindUsersByEmail(ctx context.Context, email string) ([]User, error)

	// SendPasswordReset sends an UPDATE_PASSWORD action email to the user.
	SendPasswordReset(ctx context.Context, userID string) error

	// SetPassword sets a new non-temporary password for the user.
	SetPassword(ctx context.Context, userID, password string) error

	// GetUser fetches a user by ID. ErrUserNotFound when absent.
	GetUser(ctx context.Context, userID string) (*User, error)
}
