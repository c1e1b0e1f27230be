package session

import (
	"net/http"
	"time"
)

// Transport carries the session id between client and server.
type Transport interface {
	// GetToken returns the session id or ErrNotFound.
	GetToken(r *http.Request) (string, error)
	SetToken(w http.ResponseWriter, token string, ttl time.Duration) error
	ClearToken(w http.ResponseWriter) error
}
