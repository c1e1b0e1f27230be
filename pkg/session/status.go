package session

import "time"

// Status is the client-facing view of a session.
type Status struct {
	PublicID          string    `json:"public_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
	IdleWarningAt     time.Time `json:"idle_warning_at"`
	IdleWarning       bool      `json:"idle_warning"`
	IsSuspicious      bool      `json:"is_suspicious"`
	ServerTime        time.Time `json:"server_time"`
}

// StatusOf describes sess as of now.
func (s *Service) StatusOf(sess *Session) Status {
	now := s.now()
	warnAt := sess.LastActivityAt.Add(s.cfg.idleWarningAfter())
	return Status{
		PublicID:          sess.PublicID,
		ExpiresAt:         sess.ExpiresAt,
		AbsoluteExpiresAt: sess.CreatedAt.Add(s.cfg.AbsoluteTimeout),
		IdleWarningAt:     warnAt,
		IdleWarning:       !now.Before(warnAt),
		IsSuspicious:      sess.IsSuspicious,
		ServerTime:        now,
	}
}
