package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/sessionguard/pkg/session"
)

func TestRequireCSRF(t *testing.T) {
	t.Parallel()

	sess := &session.Session{ID: "s1", UserID: "u1", CSRFToken: "csrf-token-value"}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := session.RequireCSRF("X-CSRF-Token")(ok)

	tests := []struct {
		name    string
		method  string
		token   string
		withCtx bool
		want    int
	}{
		{"safe method without token", http.MethodGet, "", true, http.StatusNoContent},
		{"post with token", http.MethodPost, "csrf-token-value", true, http.StatusNoContent},
		{"delete with token", http.MethodDelete, "csrf-token-value", true, http.StatusNoContent},
		{"post without token", http.MethodPost, "", true, http.StatusForbidden},
		{"patch with wrong token", http.MethodPatch, "csrf-token-valuX", true, http.StatusForbidden},
		{"put with prefix of token", http.MethodPut, "csrf-token", true, http.StatusForbidden},
		{"post without session", http.MethodPost, "csrf-token-value", false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(tt.method, "/", nil)
			if tt.token != "" {
				r.Header.Set("X-CSRF-Token", tt.token)
			}
			if tt.withCtx {
				r = r.WithContext(session.WithSession(context.Background(), sess))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCheckCSRF(t *testing.T) {
	t.Parallel()
	assert.False(t, session.CheckCSRF(nil, "x"))
	assert.False(t, session.CheckCSRF(&session.Session{}, ""))
	assert.True(t, session.CheckCSRF(&session.Session{CSRFToken: "x"}, "x"))
}
