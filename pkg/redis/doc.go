// Package redis connects to Redis with bounded retries and exposes a
// readiness check.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	health := redis.Healthcheck(client)
//
// Config is populated from REDIS_* environment variables.
package redis
