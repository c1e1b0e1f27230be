package pgstore

import "embed"

// Migrations holds the goose migrations creating the sessions table.
// Apply them with pg.Migrate(ctx, pool, cfg, log, pgstore.Migrations, "migrations").
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations holding the SQL files.
const MigrationsDir = "migrations"
