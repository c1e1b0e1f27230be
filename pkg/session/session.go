package session

import (
	"time"
)

// Suspicion reasons recorded the first time a session is flagged.
const (
	ReasonFingerprintMismatch = "fingerprint_mismatch"
	ReasonHighRequestRate     = "high_request_rate"
)

// Termination reasons.
const (
	TerminatedLogout    = "logout"
	TerminatedLogoutAll = "logout_all"
	TerminatedEvicted   = "evicted"
	TerminatedExpired   = "expired"
	TerminatedRevoked   = "revoked"
)

// Metadata describes the client a session was created from.
type Metadata struct {
	IPAddress   string `json:"ip_address" bson:"ip_address"`
	UserAgent   string `json:"user_agent" bson:"user_agent"`
	DeviceType  string `json:"device_type" bson:"device_type"`
	Browser     string `json:"browser" bson:"browser"`
	OS          string `json:"os" bson:"os"`
	Fingerprint string `json:"fingerprint" bson:"fingerprint"`
}

// Session is the server-side record of one authenticated client.
// ID is a bearer credential; PublicID is safe to show to the user.
type Session struct {
	ID              string `json:"id" bson:"_id"`
	PublicID        string `json:"public_id" bson:"public_id"`
	UserID          string `json:"user_id" bson:"user_id"`
	ExternalAuthRef string `json:"external_auth_ref,omitempty" bson:"external_auth_ref,omitempty"`

	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at" bson:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at" bson:"expires_at"`

	IsActive          bool       `json:"is_active" bson:"is_active"`
	TerminatedAt      *time.Time `json:"terminated_at,omitempty" bson:"terminated_at,omitempty"`
	TerminationReason string     `json:"termination_reason,omitempty" bson:"termination_reason,omitempty"`

	IsSuspicious     bool       `json:"is_suspicious" bson:"is_suspicious"`
	SuspiciousReason string     `json:"suspicious_reason,omitempty" bson:"suspicious_reason,omitempty"`
	SuspiciousAt     *time.Time `json:"suspicious_at,omitempty" bson:"suspicious_at,omitempty"`

	Metadata Metadata `json:"metadata" bson:"metadata"`

	RequestCount       int       `json:"request_count" bson:"request_count"`
	RequestWindowStart time.Time `json:"request_window_start" bson:"request_window_start"`
	LastEndpoint       string    `json:"last_endpoint,omitempty" bson:"last_endpoint,omitempty"`

	CSRFToken string `json:"csrf_token" bson:"csrf_token"`

	// Version is bumped by the store on every successful write.
	Version int64 `json:"version" bson:"version"`
}

// IsExpired reports whether now is past ExpiresAt.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// PurgeAt is the moment after which the record is only kept for the
// retention grace period.
func (s *Session) PurgeAt() time.Time {
	if s.IsActive || s.TerminatedAt == nil {
		return s.ExpiresAt
	}
	if s.TerminatedAt.Before(s.ExpiresAt) {
		return *s.TerminatedAt
	}
	return s.ExpiresAt
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.TerminatedAt != nil {
		t := *s.TerminatedAt
		c.TerminatedAt = &t
	}
	if s.SuspiciousAt != nil {
		t := *s.SuspiciousAt
		c.SuspiciousAt = &t
	}
	return &c
}

// flag marks the session suspicious. Only the first reason is kept.
func (s *Session) flag(reason string, now time.Time) bool {
	if s.IsSuspicious {
		return false
	}
	s.IsSuspicious = true
	s.SuspiciousReason = reason
	s.SuspiciousAt = &now
	return true
}

// deactivate marks the session inactive. Repeated calls keep the first reason.
func (s *Session) deactivate(reason string, now time.Time) bool {
	if !s.IsActive {
		return false
	}
	s.IsActive = false
	s.TerminatedAt = &now
	s.TerminationReason = reason
	return true
}
