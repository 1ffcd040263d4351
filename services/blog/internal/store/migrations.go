package store

import "embed"

// Migrations holds the schema for the Postgres stores, applied by
// db.Migrate(pool, store.Migrations, "migrations").
//
//go:embed migrations/*.sql
var Migrations embed.FS
