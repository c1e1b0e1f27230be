package session

import (
	"crypto/subtle"
	"net/http"
)

// RequireCSRF rejects state-changing requests whose header does not carry
// the session's CSRF token. It must run after Middleware.
func RequireCSRF(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultConfig().CSRFHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				next.ServeHTTP(w, r)
				return
			}

			sess, ok := FromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, CodeSessionNotFound)
				return
			}

			if !CheckCSRF(sess, r.Header.Get(header)) {
				WriteError(w, http.StatusForbidden, CodeCSRFMismatch)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CheckCSRF compares token with the session's CSRF token in constant time.
func CheckCSRF(sess *Session, token string) bool {
	if sess == nil || sess.CSRFToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sess.CSRFToken), []byte(token)) == 1
}
