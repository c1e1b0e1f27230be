package session

import (
	"net/http"

	"github.com/dmitrymomot/sessionguard/pkg/fingerprint"
)

// Client describes the caller of a create or validate operation.
type Client struct {
	fingerprint.Attributes

	// Endpoint is recorded for diagnostics only.
	Endpoint string
}

// ClientFromRequest extracts fingerprint attributes and the endpoint from r.
func ClientFromRequest(r *http.Request) Client {
	return Client{
		Attributes: fingerprint.FromRequest(r),
		Endpoint:   r.Method + " " + r.URL.Path,
	}
}
