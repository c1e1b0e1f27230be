// Command sessiond serves the session API over a configurable store and
// runs the expired-session sweeper next to it.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/sessionguard/pkg/config"
	"github.com/dmitrymomot/sessionguard/pkg/cookie"
	"github.com/dmitrymomot/sessionguard/pkg/httpserver"
	"github.com/dmitrymomot/sessionguard/pkg/logger"
	"github.com/dmitrymomot/sessionguard/pkg/session"
	"github.com/dmitrymomot/sessionguard/pkg/sessionapi"
)

type appConfig struct {
	Log     logger.Config
	HTTP    httpserver.Config
	Session session.Config
	Cookie  cookie.Config

	Store            string        `env:"SESSION_STORE" envDefault:"memory"`          // Store is one of memory, redis, postgres or mongo.
	IssueToken       string        `env:"SESSIOND_ISSUE_TOKEN"`                       // IssueToken guards the session issue endpoint. Empty disables it.
	ReadinessTimeout time.Duration `env:"SESSIOND_READINESS_TIMEOUT" envDefault:"2s"` // ReadinessTimeout bounds all readiness checks together.
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("sessiond stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log, err := logger.NewFromConfig(cfg.Log,
		logger.WithContextExtractors(requestIDExtractor),
	)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	be, err := openBackend(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer be.close()

	svc, err := session.NewService(be.store,
		session.WithConfig(cfg.Session),
		session.WithLocker(be.locker),
		session.WithLogger(log),
		session.WithEventHook(auditHook(log)),
	)
	if err != nil {
		return err
	}

	cookies, err := cookie.NewFromConfig(cfg.Cookie)
	if err != nil {
		return err
	}
	transport := session.NewCookieTransport(cookies, cfg.Session.CookieName, cfg.Session.SecureCookies)
	api := sessionapi.New(svc, transport, sessionapi.WithLogger(log))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(log, cfg.ReadinessTimeout, be.checks))
	if cfg.IssueToken != "" {
		r.Post("/session/issue", api.IssueHandler(bearerAuthenticator(cfg.IssueToken)))
	} else {
		log.WarnContext(ctx, "session issue endpoint disabled, set SESSIOND_ISSUE_TOKEN to enable it")
	}
	r.Mount("/session", api.Routes())

	sweeper := session.NewSweeper(be.store, cfg.Session, session.WithSweeperLogger(log))
	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, r) })
	g.Go(func() error { return sweeper.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func requestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	id := middleware.GetReqID(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return logger.RequestID(id), true
}

// auditHook writes every lifecycle event to the log.
func auditHook(log *slog.Logger) session.EventHook {
	log = log.With(logger.Component("audit"))
	return func(ctx context.Context, e session.Event) {
		log.InfoContext(ctx, string(e.Type),
			logger.UserID(e.Session.UserID),
			logger.PublicID(e.Session.PublicID),
			logger.Reason(e.Reason),
			slog.Time("at", e.At),
		)
	}
}
