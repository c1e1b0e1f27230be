// Package pg bootstraps a PostgreSQL connection pool on top of pgx/v5 and
// applies goose migrations shipped inside the binary.
//
// Connect parses Config, sizes the pool and pings the server with
// exponential backoff. Migrate bridges the pool to database/sql and runs
// every pending migration from an fs.FS, usually an embed.FS owned by the
// package that defines the schema. Healthcheck returns a closure suitable
// for readiness checks.
//
// The error helpers classify pgx failures. IsConnectionError separates
// "database unreachable" from deterministic server errors so callers can
// decide whether a retry makes sense.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//	if err := pg.Migrate(ctx, pool, cfg, logger, migrations.FS, "."); err != nil {
//		return err
//	}
package pg
