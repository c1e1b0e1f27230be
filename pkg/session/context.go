package session

import "context"

type validationContextKey struct{}

// WithValidation stores a validation result in the context.
func WithValidation(ctx context.Context, v *Validation) context.Context {
	return context.WithValue(ctx, validationContextKey{}, v)
}

// ValidationFromContext returns the result stored by Middleware.
func ValidationFromContext(ctx context.Context) (*Validation, bool) {
	v, ok := ctx.Value(validationContextKey{}).(*Validation)
	return v, ok && v != nil && v.Session != nil
}

// WithSession stores a session in the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return WithValidation(ctx, &Validation{Session: s, Suspicious: s.IsSuspicious})
}

// FromContext returns the session resolved for the current request.
func FromContext(ctx context.Context) (*Session, bool) {
	v, ok := ValidationFromContext(ctx)
	if !ok {
		return nil, false
	}
	return v.Session, true
}

// MustFromContext is like FromContext but panics when no session is present.
func MustFromContext(ctx context.Context) *Session {
	s, ok := FromContext(ctx)
	if !ok {
		panic("session: not found in context")
	}
	return s
}

// UserIDFromContext returns the owner of the request's session.
func UserIDFromContext(ctx context.Context) (string, bool) {
	s, ok := FromContext(ctx)
	if !ok || s.UserID == "" {
		return "", false
	}
	return s.UserID, true
}
