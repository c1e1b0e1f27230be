package sessionapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/sessionguard/pkg/logger"
	"github.com/dmitrymomot/sessionguard/pkg/session"
)

// Sessions is the part of session.Service the API needs.
type Sessions interface {
	session.Validator
	Create(ctx context.Context, p session.CreateParams) (*session.Session, error)
	Refresh(ctx context.Context, id string) (*session.Session, error)
	Terminate(ctx context.Context, id, reason string) error
	TerminateAll(ctx context.Context, userID string) (int, error)
	ListActive(ctx context.Context, userID string) ([]*session.Session, error)
	TerminateByPublicID(ctx context.Context, userID, publicID string) error
	StatusOf(sess *session.Session) session.Status
	Config() session.Config
}

// Handler serves the session endpoints.
type Handler struct {
	svc        Sessions
	transport  session.Transport
	log        *slog.Logger
	csrfHeader string
	retryAfter time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger. Nil keeps the default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithRetryAfter sets the Retry-After hint sent with 503 responses.
func WithRetryAfter(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.retryAfter = d
		}
	}
}

// New creates a Handler. The CSRF header name is taken from the service
// configuration.
func New(svc Sessions, t session.Transport, opts ...Option) *Handler {
	h := &Handler{
		svc:        svc,
		transport:  t,
		log:        logger.Discard(),
		csrfHeader: svc.Config().CSRFHeader,
		retryAfter: time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(logger.Component("sessionapi"))
	return h
}

// Routes returns the router with every endpoint behind session validation.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(session.Middleware(h.svc, h.transport,
		session.WithMiddlewareLogger(h.log),
		session.WithRetryAfter(h.retryAfter),
	))

	r.Get("/status", h.status)
	r.Get("/sessions", h.list)

	r.Group(func(r chi.Router) {
		r.Use(session.RequireCSRF(h.csrfHeader))
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Post("/logout-all", h.logoutAll)
		r.Delete("/sessions/{publicID}", h.revoke)
	})

	return r
}

// Issue creates a session for a user whose credentials were verified
// upstream, sets the session cookie and exposes the CSRF token in the
// response header.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request, userID, externalAuthRef string) (*session.Session, error) {
	sess, err := h.svc.Create(r.Context(), session.CreateParams{
		UserID:          userID,
		ExternalAuthRef: externalAuthRef,
		Client:          session.ClientFromRequest(r),
	})
	if err != nil {
		return nil, err
	}

	if err := h.transport.SetToken(w, sess.ID, h.svc.Config().AbsoluteTimeout); err != nil {
		return nil, err
	}
	w.Header().Set(h.csrfHeader, sess.CSRFToken)
	return sess, nil
}

// Authenticator resolves the user a trusted upstream has already
// authenticated.
type Authenticator func(r *http.Request) (userID, externalAuthRef string, err error)

// IssueHandler mints a session for the user returned by auth and answers
// with the session status. auth failures get 401.
func (h *Handler) IssueHandler(auth Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ref, err := auth(r)
		if err != nil || userID == "" {
			h.log.WarnContext(r.Context(), "session issue rejected", logger.Error(err))
			session.WriteError(w, http.StatusUnauthorized, CodeUnauthenticated)
			return
		}

		sess, err := h.Issue(w, r, userID, ref)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, h.statusOf(sess))
	}
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	session.Status
	CSRFToken string `json:"csrf_token"`
}

func (h *Handler) statusOf(sess *session.Session) StatusResponse {
	return StatusResponse{Status: h.svc.StatusOf(sess), CSRFToken: sess.CSRFToken}
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.statusOf(session.MustFromContext(r.Context())))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Refresh(r.Context(), session.MustFromContext(r.Context()).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.statusOf(sess))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := session.MustFromContext(r.Context())
	if err := h.svc.Terminate(r.Context(), sess.ID, session.TerminatedLogout); err != nil {
		h.fail(w, r, err)
		return
	}
	_ = h.transport.ClearToken(w)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAllResponse is the body of POST /logout-all.
type LogoutAllResponse struct {
	Terminated int `json:"terminated"`
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	sess := session.MustFromContext(r.Context())
	n, err := h.svc.TerminateAll(r.Context(), sess.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_ = h.transport.ClearToken(w)
	writeJSON(w, http.StatusOK, LogoutAllResponse{Terminated: n})
}

// SessionView describes one of the user's sessions without its bearer id.
type SessionView struct {
	PublicID       string    `json:"public_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	IPAddress      string    `json:"ip_address"`
	DeviceType     string    `json:"device_type"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	IsSuspicious   bool      `json:"is_suspicious"`
	Current        bool      `json:"current"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	current := session.MustFromContext(r.Context())
	active, err := h.svc.ListActive(r.Context(), current.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	views := make([]SessionView, 0, len(active))
	for _, s := range active {
		views = append(views, SessionView{
			PublicID:       s.PublicID,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			ExpiresAt:      s.ExpiresAt,
			IPAddress:      s.Metadata.IPAddress,
			DeviceType:     s.Metadata.DeviceType,
			Browser:        s.Metadata.Browser,
			OS:             s.Metadata.OS,
			IsSuspicious:   s.IsSuspicious,
			Current:        s.ID == current.ID,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	current := session.MustFromContext(r.Context())
	publicID := chi.URLParam(r, "publicID")

	if err := h.svc.TerminateByPublicID(r.Context(), current.UserID, publicID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			session.WriteError(w, http.StatusNotFound, session.CodeSessionNotFound)
			return
		}
		h.fail(w, r, err)
		return
	}

	if publicID == current.PublicID {
		_ = h.transport.ClearToken(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// CodeUnauthenticated is returned by IssueHandler when upstream
// authentication fails. CodeInternal covers unexpected failures.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeInternal        = "internal_error"
)

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrServiceUnavailable):
		h.log.ErrorContext(r.Context(), "session store unavailable", logger.Error(err))
		w.Header().Set("Retry-After", strconv.Itoa(int(max(h.retryAfter.Seconds(), 1))))
		session.WriteError(w, http.StatusServiceUnavailable, session.CodeServiceUnavailable)
	case session.IsAuthError(err):
		_ = h.transport.ClearToken(w)
		session.WriteError(w, http.StatusUnauthorized, session.ErrorCode(err))
	case errors.Is(err, session.ErrMissingUserID):
		session.WriteError(w, http.StatusBadRequest, CodeUnauthenticated)
	default:
		h.log.ErrorContext(r.Context(), "session request failed", logger.Error(err))
		session.WriteError(w, http.StatusInternalServerError, CodeInternal)
	}
}

type dataResponse struct {
	Data any `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dataResponse{Data: v})
}
