// Package logger builds *slog.Logger instances with consistent output,
// environment defaults and attributes pulled from context.Context.
//
// New takes functional options; NewFromConfig maps the LOG_* environment
// variables onto those options:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "sessiond"),
//		logger.WithContextExtractors(requestIDExtractor),
//	)
//	log.InfoContext(ctx, "session created",
//		logger.UserID(userID),
//		logger.SessionID(sess.ID),
//	)
//
// Attribute helpers such as Error and UserID return an empty slog.Attr for
// nil input, which slog drops, so call sites do not need nil checks.
//
// SessionID never writes the raw bearer identifier. It logs a short digest
// that is stable for a given session and safe to keep in log storage.
package logger
