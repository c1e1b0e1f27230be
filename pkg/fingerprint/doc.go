// Package fingerprint derives a stable device fingerprint from the request
// attributes a given client keeps constant between requests.
//
// The hash covers the User-Agent, Accept-Language, the coarse network prefix
// of the client address and, when the request arrived over TLS, the negotiated
// protocol version and cipher suite. The full IP address is deliberately left
// out so that carrier-grade NAT and mobile address churn do not change the
// result; callers keep the full address next to the fingerprint instead.
//
//	attrs := fingerprint.FromRequest(r)
//	fp := fingerprint.Compute(attrs) // "v1:3f9a..."
//
//	if !fingerprint.Match(stored, fp) {
//		// flag the session
//	}
//
// Compute is a pure function: the same attributes always produce the same
// fingerprint and missing attributes are hashed as empty strings.
package fingerprint
