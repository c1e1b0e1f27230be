package sessionapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionguard/pkg/cookie"
	"github.com/dmitrymomot/sessionguard/pkg/session"
	"github.com/dmitrymomot/sessionguard/pkg/sessionapi"
)

const (
	testSecret = "test-secret-key-that-is-long-enough-for-hmac"
	firefoxUA  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	safariUA   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock  *clock
	svc    *session.Service
	router http.Handler
}

func setup(t *testing.T) *fixture {
	t.Helper()

	c := &clock{now: time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)}
	svc, err := session.NewService(session.NewMemoryStore(), session.WithClock(c.Now))
	require.NoError(t, err)

	mgr, err := cookie.New([]string{testSecret})
	require.NoError(t, err)
	h := sessionapi.New(svc, session.NewCookieTransport(mgr, "sid", true))

	r := chi.NewRouter()
	r.Post("/login", h.IssueHandler(func(r *http.Request) (string, string, error) {
		user := r.Header.Get("X-Test-User")
		if user == "" {
			return "", "", errors.New("no user")
		}
		return user, "idp-" + user, nil
	}))
	r.Mount("/session", h.Routes())

	return &fixture{clock: c, svc: svc, router: r}
}

type client struct {
	ua     string
	cookie *http.Cookie
	csrf   string
}

func (f *fixture) do(c *client, method, path string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	r.Header.Set("User-Agent", c.ua)
	r.Header.Set("Accept-Language", "en-US")
	r.RemoteAddr = "198.51.100.20:40000"
	if c.cookie != nil {
		r.AddCookie(c.cookie)
	}
	if c.csrf != "" {
		r.Header.Set("X-CSRF-Token", c.csrf)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func (f *fixture) login(t *testing.T, user, ua string) *client {
	t.Helper()
	c := &client{ua: ua}
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.Header.Set("User-Agent", ua)
	r.Header.Set("Accept-Language", "en-US")
	r.Header.Set("X-Test-User", user)
	r.RemoteAddr = "198.51.100.20:40000"
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c.cookie = cookies[0]
	c.csrf = w.Header().Get("X-CSRF-Token")
	require.NotEmpty(t, c.csrf)
	return c
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var body struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error session.ErrorDetail `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error.Code
}

func TestIssue(t *testing.T) {
	t.Parallel()

	t.Run("sets cookie and csrf token", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		c := f.login(t, "u1", firefoxUA)

		assert.Equal(t, "sid", c.cookie.Name)
		assert.True(t, c.cookie.HttpOnly)
		assert.True(t, c.cookie.Secure)
		assert.Equal(t, http.SameSiteLaxMode, c.cookie.SameSite)
		assert.Equal(t, int((12 * time.Hour).Seconds()), c.cookie.MaxAge)

		active, err := f.svc.ListActive(t.Context(), "u1")
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "idp-u1", active[0].ExternalAuthRef)
		assert.Equal(t, c.csrf, active[0].CSRFToken)
		assert.Equal(t, "Firefox", active[0].Metadata.Browser)
	})

	t.Run("rejects unauthenticated", func(t *testing.T) {
		t.Parallel()
		f := setup(t)
		w := f.do(&client{ua: firefoxUA}, http.MethodPost, "/login")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, sessionapi.CodeUnauthenticated, errorCode(t, w))
		assert.Empty(t, w.Result().Cookies())
	})
}

func TestStatus(t *testing.T) {
	t.Parallel()
	f := setup(t)
	c := f.login(t, "u1", firefoxUA)
	start := f.clock.Now()

	w := f.do(c, http.MethodGet, "/session/status")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[sessionapi.StatusResponse](t, w)
	assert.NotEmpty(t, st.PublicID)
	assert.Equal(t, c.csrf, st.CSRFToken)
	assert.True(t, start.Add(30*time.Minute).Equal(st.ExpiresAt))
	assert.True(t, start.Add(12*time.Hour).Equal(st.AbsoluteExpiresAt))
	assert.True(t, start.Add(24*time.Minute).Equal(st.IdleWarningAt))
	assert.False(t, st.IdleWarning)
	assert.Empty(t, w.Header().Get(session.IdleWarningHeader))

	f.clock.Advance(25 * time.Minute)
	w = f.do(c, http.MethodGet, "/session/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[sessionapi.StatusResponse](t, w).IdleWarning)
	assert.Equal(t, "true", w.Header().Get(session.IdleWarningHeader))

	t.Run("without cookie", func(t *testing.T) {
		w := f.do(&client{ua: firefoxUA}, http.MethodGet, "/session/status")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, session.CodeSessionNotFound, errorCode(t, w))
	})
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	f := setup(t)
	c := f.login(t, "u1", firefoxUA)

	f.clock.Advance(20 * time.Minute)
	w := f.do(c, http.MethodPost, "/session/refresh")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := decode[sessionapi.StatusResponse](t, w)
	assert.True(t, f.clock.Now().Add(30*time.Minute).Equal(st.ExpiresAt))
	assert.False(t, st.IdleWarning)

	t.Run("requires csrf token", func(t *testing.T) {
		noCSRF := &client{ua: c.ua, cookie: c.cookie}
		w := f.do(noCSRF, http.MethodPost, "/session/refresh")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, session.CodeCSRFMismatch, errorCode(t, w))
	})

	t.Run("idle session cannot be revived", func(t *testing.T) {
		f.clock.Advance(31 * time.Minute)
		w := f.do(c, http.MethodPost, "/session/refresh")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, session.CodeSessionExpired, errorCode(t, w))
	})
}

func TestLogout(t *testing.T) {
	t.Parallel()
	f := setup(t)
	c := f.login(t, "u1", firefoxUA)

	w := f.do(c, http.MethodPost, "/session/logout")
	require.Equal(t, http.StatusNoContent, w.Code)
	cleared := w.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Negative(t, cleared[0].MaxAge)

	w = f.do(c, http.MethodGet, "/session/status")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, session.CodeSessionTerminated, errorCode(t, w))
}

func TestLogoutAll(t *testing.T) {
	t.Parallel()
	f := setup(t)
	laptop := f.login(t, "u1", firefoxUA)
	f.clock.Advance(time.Second)
	phone := f.login(t, "u1", safariUA)
	other := f.login(t, "u2", firefoxUA)

	w := f.do(laptop, http.MethodPost, "/session/logout-all")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[sessionapi.LogoutAllResponse](t, w).Terminated)

	assert.Equal(t, http.StatusUnauthorized, f.do(phone, http.MethodGet, "/session/status").Code)
	assert.Equal(t, http.StatusOK, f.do(other, http.MethodGet, "/session/status").Code)
}

func TestSessions(t *testing.T) {
	t.Parallel()
	f := setup(t)
	laptop := f.login(t, "u1", firefoxUA)
	f.clock.Advance(time.Second)
	phone := f.login(t, "u1", safariUA)
	stranger := f.login(t, "u2", firefoxUA)

	w := f.do(laptop, http.MethodGet, "/session/sessions")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), laptop.cookie.Value)

	views := decode[[]sessionapi.SessionView](t, w)
	require.Len(t, views, 2)
	assert.True(t, views[0].Current)
	assert.False(t, views[1].Current)
	assert.Equal(t, "mobile", views[1].DeviceType)

	t.Run("other users cannot revoke", func(t *testing.T) {
		w := f.do(stranger, http.MethodDelete, "/session/sessions/"+views[1].PublicID)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, http.StatusOK, f.do(phone, http.MethodGet, "/session/status").Code)
	})

	t.Run("revoke another device", func(t *testing.T) {
		w := f.do(laptop, http.MethodDelete, "/session/sessions/"+views[1].PublicID)
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Result().Cookies(), "current cookie is kept")

		w = f.do(phone, http.MethodGet, "/session/status")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, session.CodeSessionTerminated, errorCode(t, w))
	})

	t.Run("revoke current clears cookie", func(t *testing.T) {
		w := f.do(laptop, http.MethodDelete, "/session/sessions/"+views[0].PublicID)
		require.Equal(t, http.StatusNoContent, w.Code)
		require.Len(t, w.Result().Cookies(), 1)
	})
}

type downStore struct {
	session.Store
}

func (downStore) Update(context.Context, string, func(*session.Session) error) (*session.Session, error) {
	return nil, session.ErrStoreUnavailable
}

func TestStoreUnavailable(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	svc, err := session.NewService(store)
	require.NoError(t, err)
	sess, err := svc.Create(t.Context(), session.CreateParams{UserID: "u1"})
	require.NoError(t, err)

	down, err := session.NewService(downStore{store}, session.WithConfig(func() session.Config {
		cfg := session.DefaultConfig()
		cfg.StoreRetryInterval = time.Millisecond
		return cfg
	}()))
	require.NoError(t, err)

	mgr, err := cookie.New([]string{testSecret})
	require.NoError(t, err)
	transport := session.NewCookieTransport(mgr, "sid", true)
	h := sessionapi.New(down, transport, sessionapi.WithRetryAfter(3*time.Second))

	setCookie := httptest.NewRecorder()
	require.NoError(t, transport.SetToken(setCookie, sess.ID, time.Hour))

	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	r.AddCookie(setCookie.Result().Cookies()[0])
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "3", w.Header().Get("Retry-After"))
	assert.Equal(t, session.CodeServiceUnavailable, errorCode(t, w))
	assert.Empty(t, w.Result().Cookies(), "cookie is kept during outages")
}
