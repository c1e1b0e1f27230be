package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/sessionguard/pkg/config"
	"github.com/dmitrymomot/sessionguard/pkg/httpserver"
	"github.com/dmitrymomot/sessionguard/pkg/mongo"
	"github.com/dmitrymomot/sessionguard/pkg/pg"
	"github.com/dmitrymomot/sessionguard/pkg/redis"
	"github.com/dmitrymomot/sessionguard/pkg/session"
	"github.com/dmitrymomot/sessionguard/pkg/session/mongostore"
	"github.com/dmitrymomot/sessionguard/pkg/session/pgstore"
	"github.com/dmitrymomot/sessionguard/pkg/session/redisstore"
)

// backend bundles a store with the locker that serializes per-user
// operations across every instance sharing it.
type backend struct {
	store  session.Store
	locker session.Locker
	checks map[string]httpserver.Check
	close  func()
}

func openBackend(ctx context.Context, kind string, log *slog.Logger) (*backend, error) {
	switch kind {
	case "", "memory":
		log.WarnContext(ctx, "using in-memory session store, sessions are lost on restart and not shared between instances")
		return &backend{
			store:  session.NewMemoryStore(),
			locker: session.NewKeyedMutex(),
			checks: map[string]httpserver.Check{},
			close:  func() {},
		}, nil

	case "redis":
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:  redisstore.New(client, cfg.KeyPrefix),
			locker: redisstore.NewLocker(client, cfg.KeyPrefix),
			checks: map[string]httpserver.Check{"redis": redis.Healthcheck(client)},
			close:  func() { _ = client.Close() },
		}, nil

	case "postgres":
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool, cfg, log, pgstore.Migrations, pgstore.MigrationsDir); err != nil {
			pool.Close()
			return nil, err
		}
		return &backend{
			store:  pgstore.New(pool),
			locker: pgstore.NewLocker(pool, "sessionguard:"),
			checks: map[string]httpserver.Check{"postgres": pg.Healthcheck(pool)},
			close:  pool.Close,
		}, nil

	case "mongo":
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		db, err := mongo.NewWithDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := mongostore.New(db, "")
		locker := mongostore.NewLocker(db, "")
		disconnect := func() { _ = db.Client().Disconnect(context.WithoutCancel(ctx)) }
		if err := store.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, err
		}
		if err := locker.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, err
		}
		return &backend{
			store:  store,
			locker: locker,
			checks: map[string]httpserver.Check{"mongo": mongo.Healthcheck(db.Client())},
			close:  disconnect,
		}, nil

	default:
		return nil, fmt.Errorf("sessiond: unknown SESSION_STORE %q", kind)
	}
}
