package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/sessionguard/pkg/logger"
)

// Error codes written in JSON error responses.
const (
	CodeSessionNotFound    = "session_not_found"
	CodeSessionExpired     = "session_expired"
	CodeSessionTerminated  = "session_terminated"
	CodeServiceUnavailable = "service_unavailable"
	CodeCSRFMismatch       = "csrf_token_mismatch"
)

// IdleWarningHeader is set on responses once the idle warning threshold
// has been crossed.
const IdleWarningHeader = "X-Session-Idle-Warning"

// Validator is the part of Service used by Middleware.
type Validator interface {
	Validate(ctx context.Context, id string, c Client) (*Validation, error)
}

type middlewareConfig struct {
	log        *slog.Logger
	retryAfter time.Duration
	optional   bool
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithMiddlewareLogger sets the logger for validation failures. Nil is ignored.
func WithMiddlewareLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetryAfter sets the Retry-After hint sent with 503 responses.
func WithRetryAfter(d time.Duration) MiddlewareOption {
	return func(c *middlewareConfig) { c.retryAfter = d }
}

// Optional lets requests without a session cookie through without a
// session in the context. Invalid sessions are still rejected.
func Optional() MiddlewareOption {
	return func(c *middlewareConfig) { c.optional = true }
}

// Middleware resolves the session for every request and attaches it to the
// request context. Unknown, expired and terminated sessions get 401 and the
// cookie is cleared; any other failure gets 503 so clients keep their cookie.
func Middleware(v Validator, t Transport, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{log: logger.Discard(), retryAfter: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := t.GetToken(r)
			if err != nil {
				if cfg.optional {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusUnauthorized, CodeSessionNotFound)
				return
			}

			res, err := v.Validate(r.Context(), token, ClientFromRequest(r))
			if err != nil {
				// Only a definite verdict on the session ends it; anything
				// else keeps the cookie so the client can retry.
				if !IsAuthError(err) {
					cfg.log.ErrorContext(r.Context(), "session validation unavailable", logger.Error(err))
					w.Header().Set("Retry-After", strconv.Itoa(int(max(cfg.retryAfter.Seconds(), 1))))
					WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable)
					return
				}

				_ = t.ClearToken(w)
				WriteError(w, http.StatusUnauthorized, ErrorCode(err))
				return
			}

			if res.IdleWarning {
				w.Header().Set(IdleWarningHeader, "true")
			}

			next.ServeHTTP(w, r.WithContext(WithValidation(r.Context(), res)))
		})
	}
}

// ErrorCode maps a service error to the code used in JSON responses.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrServiceUnavailable):
		return CodeServiceUnavailable
	case errors.Is(err, ErrExpired):
		return CodeSessionExpired
	case errors.Is(err, ErrTerminated):
		return CodeSessionTerminated
	default:
		return CodeSessionNotFound
	}
}

// ErrorDetail is the error member of a JSON error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error ErrorDetail `json:"error"`
}

// WriteError writes a JSON error response with the given status and code.
func WriteError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: ErrorDetail{
		Code:    code,
		Message: http.StatusText(status),
	}})
}
