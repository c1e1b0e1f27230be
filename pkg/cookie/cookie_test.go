package cookie_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionguard/pkg/cookie"
)

const (
	secretA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	secretB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func roundTrip(t *testing.T, w *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := cookie.New(nil)
	assert.ErrorIs(t, err, cookie.ErrNoSecret)

	_, err = cookie.New([]string{"", ""})
	assert.ErrorIs(t, err, cookie.ErrNoSecret)

	_, err = cookie.New([]string{"short"})
	assert.ErrorIs(t, err, cookie.ErrSecretTooShort)
}

func TestSignedCookie(t *testing.T) {
	t.Parallel()

	mgr, err := cookie.New([]string{secretA}, cookie.WithSecure(true))
	require.NoError(t, err)

	t.Run("round trip keeps attributes", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		mgr.SetSigned(w, "sid", "token-value", cookie.WithMaxAge(60))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		c := cookies[0]
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		assert.Equal(t, 60, c.MaxAge)
		assert.NotContains(t, c.Value, "token-value")

		got, err := mgr.GetSigned(roundTrip(t, w), "sid")
		require.NoError(t, err)
		assert.Equal(t, "token-value", got)
	})

	t.Run("tampered value is rejected", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		mgr.SetSigned(w, "sid", "token-value")
		c := w.Result().Cookies()[0]

		encoded, sig, _ := strings.Cut(c.Value, ".")
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "sid", Value: encoded + "x." + sig})

		_, err := mgr.GetSigned(r, "sid")
		assert.ErrorIs(t, err, cookie.ErrInvalidSignature)
	})

	t.Run("malformed value", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: "sid", Value: "no-signature"})
		_, err := mgr.GetSigned(r, "sid")
		assert.ErrorIs(t, err, cookie.ErrInvalidFormat)
	})

	t.Run("missing cookie", func(t *testing.T) {
		t.Parallel()
		_, err := mgr.GetSigned(httptest.NewRequest(http.MethodGet, "/", nil), "sid")
		assert.ErrorIs(t, err, cookie.ErrCookieNotFound)
	})
}

func TestSecretRotation(t *testing.T) {
	t.Parallel()

	oldMgr, err := cookie.New([]string{secretA})
	require.NoError(t, err)
	rotated, err := cookie.New([]string{secretB, secretA})
	require.NoError(t, err)
	newOnly, err := cookie.New([]string{secretB})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	oldMgr.SetSigned(w, "sid", "v")

	got, err := rotated.GetSigned(roundTrip(t, w), "sid")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	_, err = newOnly.GetSigned(roundTrip(t, w), "sid")
	assert.ErrorIs(t, err, cookie.ErrInvalidSignature)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	mgr, err := cookie.New([]string{secretA})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	mgr.Delete(w, "sid")

	c := w.Result().Cookies()[0]
	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, -1, c.MaxAge)
	assert.Empty(t, c.Value)

	w = httptest.NewRecorder()
	mgr.Delete(w, "sid", cookie.WithPath("/app"), cookie.WithSecure(true))
	c = w.Result().Cookies()[0]
	assert.Equal(t, "/app", c.Path)
	assert.True(t, c.Secure)
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	mgr, err := cookie.NewFromConfig(cookie.Config{Secrets: " " + secretB + " , " + secretA, Secure: true})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	mgr.SetSigned(w, "sid", "v")
	assert.True(t, w.Result().Cookies()[0].Secure)

	_, err = cookie.NewFromConfig(cookie.Config{Secrets: ""})
	assert.ErrorIs(t, err, cookie.ErrNoSecret)
}
