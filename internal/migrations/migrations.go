// Package migrations holds the database schema migrations. Each migration
// file registers an up/down pair in its init function.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry the db commands feed to the Bun migrator.
var Migrations = migrate.NewMigrations()
