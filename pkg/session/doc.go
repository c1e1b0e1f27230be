// Package session tracks authenticated user sessions: creation with a
// per-user concurrency limit, validation with hijack and abuse detection,
// idle and absolute expiry, termination and purging.
//
// # Architecture
//
// Service is the only writer of session records. It persists through a
// Store, whose Update is an optimistic compare-and-swap on Session.Version.
// Lost races are retried inside the service and never reach callers.
// Create and TerminateAll additionally hold a per-user Locker so that
// eviction of the oldest session and insertion of the new one are atomic
// with respect to other logins of the same user.
//
//	┌────────┐  cookie  ┌────────────┐  Validate  ┌─────────┐  CAS  ┌───────┐
//	│ Client │ ───────► │ Middleware │ ─────────► │ Service │ ────► │ Store │
//	└────────┘          └────────────┘            └─────────┘       └───────┘
//	                                                                    ▲
//	                                               Sweeper (purge) ─────┘
//
// MemoryStore ships in this package. Redis, PostgreSQL and MongoDB
// implementations live in the redisstore, pgstore and mongostore
// subpackages and all pass the storetest conformance suite.
//
// # Usage
//
//	svc, err := session.NewService(store, session.WithConfig(cfg))
//	transport := session.NewCookieTransport(cookieMgr, cfg.CookieName, cfg.SecureCookies)
//
//	r.Group(func(r chi.Router) {
//		r.Use(session.Middleware(svc, transport))
//		r.Use(session.RequireCSRF(cfg.CSRFHeader))
//		r.Post("/profile", updateProfile)
//	})
//
// # Validation outcomes
//
// Validate returns ErrNotFound, ErrExpired or ErrTerminated when the caller
// must re-authenticate, and ErrServiceUnavailable when the store could not
// be reached within StoreTimeout after StoreRetryAttempts. A fingerprint
// mismatch or a request rate above SuspiciousRequestThreshold flags the
// session (Validation.Suspicious) without rejecting the request. The first
// reason is kept; the flag is never cleared by the service.
//
// # Expiry
//
// ExpiresAt is min(LastActivityAt+IdleTimeout, CreatedAt+AbsoluteTimeout).
// Validate does not extend a session; only Refresh does. Expired sessions are
// deactivated lazily on the next access and purged by Sweeper once
// RetentionGrace has passed.
package session
