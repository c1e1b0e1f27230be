package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

const minSecretLength = 32

var (
	ErrNoSecret         = errors.New("cookie: no signing secret configured")
	ErrSecretTooShort   = errors.New("cookie: signing secret too short")
	ErrInvalidSignature = errors.New("cookie: signature mismatch")
	ErrCookieNotFound   = errors.New("cookie: not present in request")
	ErrInvalidFormat    = errors.New("cookie: malformed value")
)

// Manager sets and reads cookies with shared default attributes.
type Manager struct {
	secrets  []string
	defaults Options
}

// New creates a Manager. At least one secret of 32+ characters is required.
func New(secrets []string, opts ...Option) (*Manager, error) {
	secrets = slices.DeleteFunc(slices.Clone(secrets), func(s string) bool { return s == "" })
	if len(secrets) == 0 {
		return nil, ErrNoSecret
	}

	for i, s := range secrets {
		if len(s) < minSecretLength {
			return nil, fmt.Errorf("%w: secret %d has %d chars, need at least %d", ErrSecretTooShort, i, len(s), minSecretLength)
		}
	}

	defaults := apply(Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, opts)

	return &Manager{secrets: secrets, defaults: defaults}, nil
}

// Set writes a plain cookie.
func (m *Manager) Set(w http.ResponseWriter, name, value string, opts ...Option) {
	o := apply(m.defaults, opts)
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   o.MaxAge,
		Secure:   o.Secure,
		HttpOnly: o.HttpOnly,
		SameSite: o.SameSite,
	})
}

// Get reads a plain cookie value.
func (m *Manager) Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrCookieNotFound
		}
		return "", err
	}
	return c.Value, nil
}

// Delete expires a cookie. Browsers match the deletion on name, path and
// domain, so pass the same options the cookie was set with.
func (m *Manager) Delete(w http.ResponseWriter, name string, opts ...Option) {
	o := apply(m.defaults, opts)
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   o.Secure,
		HttpOnly: o.HttpOnly,
		SameSite: o.SameSite,
	})
}

// SetSigned writes value together with an HMAC-SHA256 signature.
func (m *Manager) SetSigned(w http.ResponseWriter, name, value string, opts ...Option) {
	m.Set(w, name, m.sign(m.secrets[0], value), opts...)
}

// GetSigned reads a signed cookie and verifies it against every secret.
func (m *Manager) GetSigned(r *http.Request, name string) (string, error) {
	raw, err := m.Get(r, name)
	if err != nil {
		return "", err
	}
	return m.verify(raw)
}

func (m *Manager) sign(secret, value string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(value))
	return encoded + "." + m.mac(secret, encoded)
}

func (m *Manager) mac(secret, encoded string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func (m *Manager) verify(raw string) (string, error) {
	encoded, signature, ok := strings.Cut(raw, ".")
	if !ok || encoded == "" || signature == "" {
		return "", ErrInvalidFormat
	}

	for _, secret := range m.secrets {
		if subtle.ConstantTimeCompare([]byte(signature), []byte(m.mac(secret, encoded))) == 1 {
			value, err := base64.RawURLEncoding.DecodeString(encoded)
			if err != nil {
				return "", ErrInvalidFormat
			}
			return string(value), nil
		}
	}

	return "", ErrInvalidSignature
}
