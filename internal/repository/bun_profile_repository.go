package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ignatius32/keycloak-auth-template/internal/db/models"
	"github.com/uptrace/bun"
)

// BunProfileRepository implements ProfileRepository using Bun ORM
type BunProfileRepository struct {
	db *bun.DB
}

// NewBunProfileRepository creates a new Bun-based profile repository
func NewBunProfileRepository(db *bun.DB) *BunProfileRepository {
	return &BunProfileRepository{db: db}
}

// GetByKeycloakID retrieves the profile for a Keycloak account
func (r *BunProfileRepository) GetByKeycloakID(ctx context.Context, keycloakID string) (*models.Profile, error) {
	profile := new(models.Profile)
	err := r.db.NewSelect().
		Model(profile).
		Where("keycloak_id = ?", keycloakID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile by keycloak ID: %w", err)
	}
	return profile, nil
}

// Create inserts a new profile. The unique constraint on keycloak_id makes
// concurrent creates for the same account resolve to exactly one winner.
func (r *BunProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(profile).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateProfile
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// Update applies the non-nil patch fields to the account's profile
func (r *BunProfileRepository) Update(ctx context.Context, keycloakID string, patch ProfilePatch) (*models.Profile, error) {
	q := r.db.NewUpdate().
		Model((*models.Profile)(nil)).
		Set("updated_at = ?", time.Now()).
		Where("keycloak_id = ?", keycloakID)

	if patch.FullName != nil {
		q = q.Set("full_name = ?", *patch.FullName)
	}
	if patch.Phone != nil {
		q = q.Set("phone = ?", *patch.Phone)
	}
	if patch.Address != nil {
		q = q.Set("address = ?", *patch.Address)
	}
	if patch.City != nil {
		q = q.Set("city = ?", *patch.City)
	}
	if patch.Country != nil {
		q = q.Set("country = ?", *patch.Country)
	}
	if patch.Timezone != nil {
		q = q.Set("timezone = ?", *patch.Timezone)
	}

	result, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrProfileNotFound
	}

	return r.GetByKeycloakID(ctx, keycloakID)
}

// List returns all profiles, newest first
func (r *BunProfileRepository) List(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.db.NewSelect().
		Model(&profiles).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

// isUniqueViolation detects unique-constraint errors across the supported
// drivers. pgdriver reports SQLSTATE 23505, modernc sqlite reports a
// "UNIQUE constraint failed" message; neither exports a typed error that
// both drivers share.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "23505")
}
