package session

import (
	"net/http"
	"time"

	"github.com/dmitrymomot/sessionguard/pkg/cookie"
)

// CookieTransport stores the session id in a signed HttpOnly cookie with
// SameSite=Lax.
type CookieTransport struct {
	cookieMgr  *cookie.Manager
	cookieName string
	secure     bool
	options    []cookie.Option
}

// NewCookieTransport creates a transport for the cookie named cookieName.
// opts are applied last and override the defaults.
func NewCookieTransport(cookieMgr *cookie.Manager, cookieName string, secure bool, opts ...cookie.Option) *CookieTransport {
	return &CookieTransport{
		cookieMgr:  cookieMgr,
		cookieName: cookieName,
		secure:     secure,
		options:    opts,
	}
}

// GetToken returns the verified session id, or ErrNotFound when the cookie
// is missing or its signature does not match.
func (t *CookieTransport) GetToken(r *http.Request) (string, error) {
	token, err := t.cookieMgr.GetSigned(r, t.cookieName)
	if err != nil || token == "" {
		return "", ErrNotFound
	}
	return token, nil
}

// SetToken writes the cookie. The max age follows ttl so the browser drops
// the cookie once the session can no longer be valid.
func (t *CookieTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	t.cookieMgr.SetSigned(w, t.cookieName, token, t.attributes(cookie.WithMaxAge(int(ttl.Seconds())))...)
	return nil
}

// ClearToken expires the cookie with the attributes it was issued with.
func (t *CookieTransport) ClearToken(w http.ResponseWriter) error {
	t.cookieMgr.Delete(w, t.cookieName, t.attributes()...)
	return nil
}

// attributes are shared by SetToken and ClearToken so a cleared cookie
// always matches the issued one.
func (t *CookieTransport) attributes(extra ...cookie.Option) []cookie.Option {
	opts := append(extra,
		cookie.WithPath("/"),
		cookie.WithHTTPOnly(true),
		cookie.WithSameSite(http.SameSiteLaxMode),
		cookie.WithSecure(t.secure),
	)
	return append(opts, t.options...)
}
