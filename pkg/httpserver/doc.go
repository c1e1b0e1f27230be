// Package httpserver wraps net/http with context driven graceful shutdown,
// configurable timeouts and health check handlers.
//
// Run binds the listener, fires the start hooks and serves until the
// context is cancelled or Shutdown is called. In-flight requests then get
// the configured shutdown timeout to finish. Signal handling is left to
// the caller, typically through signal.NotifyContext.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.Liveness())
//	r.Get("/readyz", httpserver.Readiness(log, 2*time.Second, map[string]httpserver.Check{
//		"redis": redis.Healthcheck(client),
//	}))
//	if err := srv.Run(ctx, r); err != nil {
//		return err
//	}
//
// Listen failures are wrapped with ErrStart and shutdown failures with
// ErrShutdown.
package httpserver
