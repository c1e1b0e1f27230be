// Package mongo creates MongoDB clients from environment driven
// configuration.
//
// New applies the pool settings from Config and pings the server with
// retries so a service can start before its database is ready. Healthcheck
// wraps Ping for readiness checks. IsUnavailable separates connectivity
// failures from errors returned by the server.
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
package mongo
