// Package sessionmonitor keeps a client-side view of a session served by
// sessionapi.
//
// A Monitor polls the status endpoint, refreshes the session shortly before
// it would idle out, but only when the embedding application reported user
// activity through Touch, and notifies the application through callbacks:
//
//   - OnExpiringSoon when the server reports the idle warning threshold.
//   - OnIdleImminent when less than the imminent threshold remains.
//   - OnSuspicious the first time the session is seen flagged.
//   - OnExpired once the server no longer accepts the session.
//
// The monitor makes no security decision. Every check it relies on is
// enforced by the server; it only schedules refreshes and warnings.
package sessionmonitor
