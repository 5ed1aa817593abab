package migrations

import (
	"context"
	"fmt"

	"github.com/Ignatius32/keycloak-auth-template/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260110000001, down_20260110000001)
}

// up_20260110000001 creates the profiles table
func up_20260110000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating profiles table...")

	_, err := db.NewCreateTable().
		Model((*models.Profile)(nil)).
		IfNotExists().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create profiles table: %w", err)
	}

	// Index for the lookup every profile read performs. PostgreSQL already
	// indexes the unique constraint; SQLite needs it spelled out.
	if IsSQLite(db) {
		_, err = db.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_keycloak_id ON profiles(keycloak_id)
		`)
		if err != nil {
			return fmt.Errorf("failed to create profiles keycloak_id index: %w", err)
		}
	}

	fmt.Println(" OK")
	return nil
}

// down_20260110000001 drops the profiles table
func down_20260110000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping profiles table...")

	_, err := db.NewDropTable().
		Model((*models.Profile)(nil)).
		IfExists().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to drop profiles table: %w", err)
	}

	fmt.Println(" OK")
	return nil
}
