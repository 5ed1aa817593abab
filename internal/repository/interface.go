// Package repository exposes persistence operations for locally stored
// profile data.
package repository

import (
	"context"
	"errors"

	"github.com/Ignatius32/keycloak-auth-template/internal/db/models"
)

var (
	// ErrProfileNotFound is returned when no profile exists for the
	// requested account.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrDuplicateProfile is returned when a create collides with an
	// existing profile for the same account.
	ErrDuplicateProfile = errors.New("profile already exists")
)

// ProfilePatch carries a partial profile update. Nil fields are left
// untouched; non-nil fields are written, including empty strings.
type ProfilePatch struct {
	FullName *string
	Phone    *string
	Address  *string
	City     *string
	Country  *string
	Timezone *string
}

// ProfileRepository exposes persistence operations for user profiles.
type ProfileRepository interface {
	// GetByKeycloakID returns the profile for the account.
	// ErrProfileNotFound when absent.
	GetByKeycloakID(ctx context.Context, keycloakID string) (*models.Profile, error)

	// Create inserts a new profile. ErrDuplicateProfile when the account
	// already has one.
	Create(ctx context.Context, profile *models.Profile) error

	// Update applies the non-nil patch fields to the account's profile and
	// returns the result. ErrProfileNotFound when absent.
	Update(ctx context.Context, keycloakID string, patch ProfilePatch) (*models.Profile, error)

	// List returns all profiles, newest first.
	List(ctx context.Context) ([]models.Profile, error)
}
