// Package cookie writes and reads HMAC-signed HTTP cookies with secret
// rotation.
//
// The first secret signs new cookies; every configured secret is accepted
// when verifying, so a secret can be rotated by prepending the new value and
// dropping the old one once outstanding cookies have expired.
//
//	mgr, err := cookie.New([]string{os.Getenv("COOKIE_SECRET")},
//		cookie.WithSecure(true),
//	)
//	_ = mgr.SetSigned(w, "sid", token, cookie.WithMaxAge(1800))
//	token, err := mgr.GetSigned(r, "sid")
//
// Defaults are Path=/, HttpOnly and SameSite=Lax.
package cookie
