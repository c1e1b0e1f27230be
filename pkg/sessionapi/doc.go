// Package sessionapi exposes session self-service endpoints over HTTP.
//
// Routes mounts, behind session.Middleware:
//
//	GET    /status              current session status and CSRF token
//	POST   /refresh             record activity and extend the session
//	POST   /logout              terminate the current session
//	POST   /logout-all          terminate every session of the user
//	GET    /sessions            list the user's active sessions
//	DELETE /sessions/{publicID} revoke one of the user's sessions
//
// State-changing routes require the CSRF header. Successful responses are
// wrapped as {"data": ...}; failures as {"error": {"code", "message"}}.
//
// Credential verification happens elsewhere. After it succeeds the login
// flow calls Handler.Issue, or mounts IssueHandler behind its own
// authentication, to mint the session cookie.
package sessionapi
