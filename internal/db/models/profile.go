// Package models holds the Bun table models for locally stored data.
// Identity lives in Keycloak; this database only carries the profile fields
// Keycloak does not manage.
package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Profile stores the service-local profile attributes for a Keycloak account.
// KeycloakID is the upstream user ID (the token subject); at most one profile
// exists per account.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	ID         int64     `bun:"id,pk,autoincrement"`
	KeycloakID string    `bun:"keycloak_id,notnull,unique"`
	FullName   string    `bun:"full_name"`
	Phone      *string   `bun:"phone"`
	Address    *string   `bun:"address"`
	City       *string   `bun:"city"`
	Country    *string   `bun:"country"`
	Timezone   *string   `bun:"timezone"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
