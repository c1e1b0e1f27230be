package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrymomot/sessionguard/pkg/sessionapi"
)

var (
	errIssueUnauthorized = errors.New("sessiond: invalid issue token")
	errIssueBadRequest   = errors.New("sessiond: malformed issue request")
)

type issueRequest struct {
	UserID          string `json:"user_id"`
	ExternalAuthRef string `json:"external_auth_ref"`
}

// bearerAuthenticator trusts the user named in the JSON body when the
// request carries the shared issue token. The login backend calls the
// endpoint after verifying credentials, forwards the user's client headers
// and relays the Set-Cookie and CSRF headers back to the browser.
func bearerAuthenticator(token string) sessionapi.Authenticator {
	return func(r *http.Request) (string, string, error) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return "", "", errIssueUnauthorized
		}

		var req issueRequest
		if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 4<<10)).Decode(&req); err != nil {
			return "", "", errors.Join(errIssueBadRequest, err)
		}
		if req.UserID == "" {
			return "", "", errIssueBadRequest
		}
		return req.UserID, req.ExternalAuthRef, nil
	}
}
